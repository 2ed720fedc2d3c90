// ABOUTME: Row types returned by store methods and input types accepted by them.
// ABOUTME: JSON tags are the wire format of the HTTP API.
package store

import (
	"time"

	"github.com/google/uuid"

	"github.com/patroncollective/patron/internal/access"
)

// User is an authentication identity. PasswordHash is empty for
// OAuth-only accounts.
type User struct {
	ID                  uuid.UUID  `json:"id"`
	Email               string     `json:"email"`
	DisplayName         string     `json:"display_name"`
	PasswordHash        string     `json:"-"`
	PasswordHashVersion int        `json:"-"`
	TokenVersion        int        `json:"-"`
	CreatedAt           time.Time  `json:"created_at"`
	LastLoginAt         *time.Time `json:"last_login_at,omitempty"`
}

// Organization is a gallery tenant with its billing fields.
type Organization struct {
	ID                 uuid.UUID  `json:"id"`
	Name               string     `json:"name"`
	SubscriptionStatus string     `json:"subscription_status"`
	TrialEndsAt        *time.Time `json:"trial_ends_at,omitempty"`
	CreatedAt          time.Time  `json:"created_at"`
	UpdatedAt          time.Time  `json:"updated_at"`
}

// OrganizationSummary is a row of the superadmin organization listing.
type OrganizationSummary struct {
	Organization
	MemberCount int `json:"member_count"`
}

// Profile holds the columns every schema version has.
type Profile struct {
	ID             uuid.UUID  `json:"id"`
	OrganizationID *uuid.UUID `json:"organization_id,omitempty"`
	Email          string     `json:"email"`
	FullName       string     `json:"full_name"`
	Timezone       string     `json:"timezone"`
	ReminderTime   string     `json:"reminder_time"`
	InvitedBy      *uuid.UUID `json:"invited_by,omitempty"`
	CreatedAt      time.Time  `json:"created_at"`
}

// ProfileInput is the editable part of a profile.
type ProfileInput struct {
	FullName     string `json:"full_name"`
	Timezone     string `json:"timezone"`
	ReminderTime string `json:"reminder_time"`
}

// Member is a profile with its stored role data, as listed to admins.
// Permissions is the raw stored document and may be nil.
type Member struct {
	Profile
	Role         string              `json:"role"`
	IsSuperadmin bool                `json:"is_superadmin"`
	Permissions  *access.Permissions `json:"permissions,omitempty"`
}

// Client is a gallery contact.
type Client struct {
	ID             uuid.UUID `json:"id"`
	OrganizationID uuid.UUID `json:"organization_id"`
	Name           string    `json:"name"`
	Phone          *string   `json:"phone,omitempty"`
	Email          *string   `json:"email,omitempty"`
	Location       *string   `json:"location,omitempty"`
	Country        *string   `json:"country,omitempty"`
	AgeRange       *string   `json:"age_range,omitempty"`
	Tags           []string  `json:"tags"`
	CreatedAt      time.Time `json:"created_at"`
	UpdatedAt      time.Time `json:"updated_at"`
}

// ClientInput is the writable part of a client.
type ClientInput struct {
	Name     string   `json:"name"`
	Phone    *string  `json:"phone,omitempty"`
	Email    *string  `json:"email,omitempty"`
	Location *string  `json:"location,omitempty"`
	Country  *string  `json:"country,omitempty"`
	AgeRange *string  `json:"age_range,omitempty"`
	Tags     []string `json:"tags"`
}

// ClientFilter narrows ListClients. Zero values mean no filter.
type ClientFilter struct {
	Search string
	Tag    string
	Limit  int
	Offset int
}

// Follow-up statuses stored on notes.
const (
	FollowUpPending = "pending"
	FollowUpDone    = "done"
)

// Note is a free-text note on a client, optionally carrying a follow-up.
type Note struct {
	ID             uuid.UUID  `json:"id"`
	OrganizationID uuid.UUID  `json:"organization_id"`
	ClientID       uuid.UUID  `json:"client_id"`
	Content        string     `json:"content"`
	FollowUpDate   *time.Time `json:"follow_up_date,omitempty"`
	FollowUpStatus *string    `json:"follow_up_status,omitempty"`
	CreatedAt      time.Time  `json:"created_at"`
	UpdatedAt      time.Time  `json:"updated_at"`
}

// FollowUp is a pending follow-up joined with its client's name.
type FollowUp struct {
	NoteID         uuid.UUID `json:"note_id"`
	OrganizationID uuid.UUID `json:"organization_id"`
	ClientID       uuid.UUID `json:"client_id"`
	ClientName     string    `json:"client_name"`
	Content        string    `json:"content"`
	FollowUpDate   time.Time `json:"follow_up_date"`
}

// Enquiry records what a client is looking for.
type Enquiry struct {
	ID             uuid.UUID `json:"id"`
	OrganizationID uuid.UUID `json:"organization_id"`
	ClientID       uuid.UUID `json:"client_id"`
	ClientName     string    `json:"client_name,omitempty"`
	Size           *string   `json:"size,omitempty"`
	Budget         *string   `json:"budget,omitempty"`
	Artist         *string   `json:"artist,omitempty"`
	Timeline       *string   `json:"timeline,omitempty"`
	WorkType       *string   `json:"work_type,omitempty"`
	Notes          *string   `json:"notes,omitempty"`
	CreatedAt      time.Time `json:"created_at"`
	UpdatedAt      time.Time `json:"updated_at"`
}

// EnquiryInput is the writable part of an enquiry.
type EnquiryInput struct {
	Size     *string `json:"size,omitempty"`
	Budget   *string `json:"budget,omitempty"`
	Artist   *string `json:"artist,omitempty"`
	Timeline *string `json:"timeline,omitempty"`
	WorkType *string `json:"work_type,omitempty"`
	Notes    *string `json:"notes,omitempty"`
}

// Sale records a purchase by a client.
type Sale struct {
	ID             uuid.UUID `json:"id"`
	OrganizationID uuid.UUID `json:"organization_id"`
	ClientID       uuid.UUID `json:"client_id"`
	ClientName     string    `json:"client_name,omitempty"`
	ArtworkName    *string   `json:"artwork_name,omitempty"`
	Amount         *float64  `json:"amount,omitempty"`
	SaleDate       time.Time `json:"sale_date"`
	Notes          *string   `json:"notes,omitempty"`
	CreatedAt      time.Time `json:"created_at"`
	UpdatedAt      time.Time `json:"updated_at"`
}

// SaleInput is the writable part of a sale. A nil SaleDate means today.
type SaleInput struct {
	ArtworkName *string    `json:"artwork_name,omitempty"`
	Amount      *float64   `json:"amount,omitempty"`
	SaleDate    *time.Time `json:"sale_date,omitempty"`
	Notes       *string    `json:"notes,omitempty"`
}

// Inventory statuses and sources accepted by the schema.
const (
	InventoryAvailable  = "available"
	InventoryReserved   = "reserved"
	InventorySold       = "sold"
	InventoryNotForSale = "not_for_sale"
	SourceOwned         = "owned"
	SourceConsignment   = "consignment"
)

// InventoryItem is an artwork held by the gallery.
type InventoryItem struct {
	ID             uuid.UUID `json:"id"`
	OrganizationID uuid.UUID `json:"organization_id"`
	Title          string    `json:"title"`
	Artist         *string   `json:"artist,omitempty"`
	Medium         *string   `json:"medium,omitempty"`
	Dimensions     *string   `json:"dimensions,omitempty"`
	Year           *int      `json:"year,omitempty"`
	AskingPrice    *float64  `json:"asking_price,omitempty"`
	ReservePrice   *float64  `json:"reserve_price,omitempty"`
	ImagePath      *string   `json:"image_path,omitempty"`
	Status         string    `json:"status"`
	Source         string    `json:"source"`
	Consignor      *string   `json:"consignor,omitempty"`
	Notes          *string   `json:"notes,omitempty"`
	CreatedAt      time.Time `json:"created_at"`
	UpdatedAt      time.Time `json:"updated_at"`
}

// InventoryInput is the writable part of an inventory item.
type InventoryInput struct {
	Title        string   `json:"title"`
	Artist       *string  `json:"artist,omitempty"`
	Medium       *string  `json:"medium,omitempty"`
	Dimensions   *string  `json:"dimensions,omitempty"`
	Year         *int     `json:"year,omitempty"`
	AskingPrice  *float64 `json:"asking_price,omitempty"`
	ReservePrice *float64 `json:"reserve_price,omitempty"`
	ImagePath    *string  `json:"image_path,omitempty"`
	Status       string   `json:"status"`
	Source       string   `json:"source"`
	Consignor    *string  `json:"consignor,omitempty"`
	Notes        *string  `json:"notes,omitempty"`
}

// InventoryFilter narrows ListInventory.
type InventoryFilter struct {
	Search string
	Status string
}

// Invitation statuses.
const (
	InvitationPending  = "pending"
	InvitationAccepted = "accepted"
	InvitationExpired  = "expired"
)

// Invitation is an emailed offer to join an organization as a user.
type Invitation struct {
	ID             uuid.UUID          `json:"id"`
	OrganizationID uuid.UUID          `json:"organization_id"`
	Email          string             `json:"email"`
	Permissions    access.Permissions `json:"permissions"`
	InvitedBy      *uuid.UUID         `json:"invited_by,omitempty"`
	Status         string             `json:"status"`
	ExpiresAt      time.Time          `json:"expires_at"`
	AcceptedAt     *time.Time         `json:"accepted_at,omitempty"`
	CreatedAt      time.Time          `json:"created_at"`
}

// ReminderRecipient is an organization member who receives the digest.
type ReminderRecipient struct {
	UserID         uuid.UUID
	OrganizationID uuid.UUID
	Email          string
	FullName       string
}

// Export is the settings-page data dump.
type Export struct {
	Clients []Client `json:"clients"`
	Notes   []Note   `json:"notes"`
	Sales   []Sale   `json:"sales"`
}
