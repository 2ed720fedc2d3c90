// ABOUTME: Tests for inventory pricing redaction, autocomplete values and import normalization.
package crm

import (
	"context"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/patroncollective/patron/internal/access"
	"github.com/patroncollective/patron/internal/billing"
	"github.com/patroncollective/patron/internal/store"
)

func TestInventory_PricingRedaction(t *testing.T) {
	t.Parallel()
	h := newHarness(t)
	org := h.activeOrg()
	admin := h.repo.addUser(org, "admin", false, nil)
	pricing := h.repo.addUser(org, "user", false, permsPtr(access.Permissions{CanSeePricing: true}))
	plain := h.repo.addUser(org, "user", false, permsPtr(access.Permissions{}))
	item := h.repo.addItem(org, 5000, 4200)
	ctx := context.Background()

	it, err := h.svc.GetInventoryItem(ctx, admin, item)
	require.NoError(t, err)
	require.NotNil(t, it.AskingPrice)
	assert.Equal(t, 5000.0, *it.AskingPrice)

	it, err = h.svc.GetInventoryItem(ctx, pricing, item)
	require.NoError(t, err)
	require.NotNil(t, it.ReservePrice)
	assert.Equal(t, 4200.0, *it.ReservePrice)

	it, err = h.svc.GetInventoryItem(ctx, plain, item)
	require.NoError(t, err)
	assert.Nil(t, it.AskingPrice)
	assert.Nil(t, it.ReservePrice)
	assert.Equal(t, "Untitled", it.Title)

	items, err := h.svc.ListInventory(ctx, plain, store.InventoryFilter{})
	require.NoError(t, err)
	require.Len(t, items, 1)
	assert.Nil(t, items[0].AskingPrice)

	// Redaction works on copies; the stored record keeps its prices.
	it, err = h.svc.GetInventoryItem(ctx, admin, item)
	require.NoError(t, err)
	assert.NotNil(t, it.AskingPrice)
}

func TestInventory_AutocompleteValues(t *testing.T) {
	t.Parallel()
	h := newHarness(t)
	past := h.clock.now().Add(-time.Hour)
	org := h.repo.addOrg(billing.StatusTrialing, &past)
	viewer := h.repo.addUser(org, "user", false, permsPtr(access.Permissions{ReadOnly: true}))
	h.repo.setItemArtist(h.repo.addItem(org, 100, 80), "Vera Moll", "Oil on canvas")
	h.repo.setItemArtist(h.repo.addItem(org, 200, 150), "Anton Ek", "Oil on canvas")
	h.repo.setItemArtist(h.repo.addItem(h.activeOrg(), 300, 250), "Elsewhere", "Bronze")
	ctx := context.Background()

	artists, err := h.svc.ListInventoryArtists(ctx, viewer)
	require.NoError(t, err)
	assert.Equal(t, []string{"Anton Ek", "Vera Moll"}, artists)

	mediums, err := h.svc.ListInventoryMediums(ctx, viewer)
	require.NoError(t, err)
	assert.Equal(t, []string{"Oil on canvas"}, mediums)

	pending := h.repo.addUser(uuid.Nil, "admin", false, nil)
	_, err = h.svc.ListInventoryArtists(ctx, pending)
	assert.ErrorIs(t, err, access.ErrOnboardingIncomplete)
}

func TestInventory_ListRejectsUnknownStatus(t *testing.T) {
	t.Parallel()
	h := newHarness(t)
	org := h.activeOrg()
	admin := h.repo.addUser(org, "admin", false, nil)

	_, err := h.svc.ListInventory(context.Background(), admin, store.InventoryFilter{Status: "lost"})
	_, ok := IsValidation(err)
	assert.True(t, ok, "err = %v", err)
}

func TestCleanInventoryInput(t *testing.T) {
	t.Parallel()
	neg := -1.0

	in, err := cleanInventoryInput(store.InventoryInput{Title: " Blue "})
	require.NoError(t, err)
	assert.Equal(t, "Blue", in.Title)
	assert.Equal(t, store.InventoryAvailable, in.Status)
	assert.Equal(t, store.SourceOwned, in.Source)

	cases := map[string]store.InventoryInput{
		"title":         {Title: ""},
		"status":        {Title: "x", Status: "lost"},
		"source":        {Title: "x", Source: "borrowed"},
		"asking_price":  {Title: "x", AskingPrice: &neg},
		"reserve_price": {Title: "x", ReservePrice: &neg},
	}
	for field, in := range cases {
		_, err := cleanInventoryInput(in)
		v, ok := IsValidation(err)
		if assert.True(t, ok, field) {
			assert.Equal(t, field, v.Field)
		}
	}
}

func TestNormalizeImportRow(t *testing.T) {
	t.Parallel()
	got := normalizeImportRow(InventoryImportRow{
		Title:        "  Rothko Study ",
		Artist:       " ",
		Year:         "1961",
		AskingPrice:  "12500.50",
		ReservePrice: "0",
		Status:       " SOLD ",
		Source:       "Consignment",
		Consignor:    "Estate",
	})
	assert.Equal(t, "Rothko Study", got.Title)
	assert.Nil(t, got.Artist)
	require.NotNil(t, got.Year)
	assert.Equal(t, 1961, *got.Year)
	require.NotNil(t, got.AskingPrice)
	assert.Equal(t, 12500.5, *got.AskingPrice)
	assert.Nil(t, got.ReservePrice, "zero prices are dropped")
	assert.Equal(t, store.InventorySold, got.Status)
	assert.Equal(t, store.SourceConsignment, got.Source)
	require.NotNil(t, got.Consignor)

	fallback := normalizeImportRow(InventoryImportRow{Title: "x", Year: "circa 1960", AskingPrice: "-5", Status: "lost", Source: "borrowed"})
	assert.Nil(t, fallback.Year)
	assert.Nil(t, fallback.AskingPrice)
	assert.Equal(t, store.InventoryAvailable, fallback.Status)
	assert.Equal(t, store.SourceOwned, fallback.Source)
}

func TestImportInventory_SkipsUntitledRows(t *testing.T) {
	t.Parallel()
	h := newHarness(t)
	org := h.activeOrg()
	admin := h.repo.addUser(org, "admin", false, nil)

	res, err := h.svc.ImportInventory(context.Background(), admin, []InventoryImportRow{
		{Title: "One", Status: "Reserved"},
		{Title: "  "},
		{Title: "Two"},
	})
	require.NoError(t, err)
	assert.Equal(t, 2, res.Imported)
	assert.Equal(t, []string{"Skipped row with no title"}, res.Errors)
	require.Len(t, h.repo.importedItems, 2)
	assert.Equal(t, store.InventoryReserved, h.repo.importedItems[0].Status)
}

func TestImportInventory_AllSkippedDoesNotWrite(t *testing.T) {
	t.Parallel()
	h := newHarness(t)
	org := h.activeOrg()
	admin := h.repo.addUser(org, "admin", false, nil)

	res, err := h.svc.ImportInventory(context.Background(), admin, []InventoryImportRow{{}})
	require.NoError(t, err)
	assert.Zero(t, res.Imported)
	assert.Zero(t, h.repo.writeCount())
}
