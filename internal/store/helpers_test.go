package store_test

func strPtr(s string) *string { return &s }
