package core

import (
	"encoding/json"
	"regexp"
	"strings"
	"time"
	"unicode/utf8"
)

const (
	Income  TransactionType = "income"
	Expense TransactionType = "expense"
)

const (
	DateLayout = "2006-01-02"

	DefaultCategoryColor = "#6366F1"
	DefaultCategoryIcon  = "tag"

	DefaultListLimit = 50
	MaxListLimit     = 1000

	maxNameLength        = 100
	maxDescriptionLength = 200
	maxNotesLength       = 2000
	maxTags              = 20
	maxTagLength         = 50
)

type (
	TransactionType string

	Date struct {
		time.Time
	}

	// OwnerSummary is the denormalized owner attached to rows in staff views.
	OwnerSummary struct {
		ID       string `json:"id"`
		Email    string `json:"email"`
		FullName string `json:"full_name"`
		IsStaff  bool   `json:"is_staff"`
	}

	Profile struct {
		ID          string         `json:"id"`
		Email       string         `json:"email"`
		FullName    string         `json:"full_name"`
		Username    *string        `json:"username"`
		Bio         string         `json:"bio"`
		Phone       string         `json:"phone"`
		Location    string         `json:"location"`
		Website     string         `json:"website"`
		AvatarURL   string         `json:"avatar_url"`
		IsStaff     bool           `json:"is_staff"`
		IsActive    bool           `json:"is_active"`
		IsVerified  bool           `json:"is_verified"`
		Preferences map[string]any `json:"preferences"`
		CreatedAt   time.Time      `json:"created_at"`
		UpdatedAt   time.Time      `json:"updated_at"`
	}

	// ProfilePatch is a partial profile update. Nil fields are left unchanged.
	// An empty Username clears it.
	ProfilePatch struct {
		FullName    *string        `json:"full_name"`
		Username    *string        `json:"username"`
		Bio         *string        `json:"bio"`
		Phone       *string        `json:"phone"`
		Location    *string        `json:"location"`
		Website     *string        `json:"website"`
		AvatarURL   *string        `json:"avatar_url"`
		Preferences map[string]any `json:"preferences"`
		IsStaff     *bool          `json:"is_staff"`
		IsActive    *bool          `json:"is_active"`
		IsVerified  *bool          `json:"is_verified"`
	}

	Category struct {
		ID        string          `json:"id"`
		UserID    string          `json:"user_id"`
		Name      string          `json:"name"`
		Type      TransactionType `json:"type"`
		Color     string          `json:"color"`
		Icon      string          `json:"icon"`
		CreatedAt time.Time       `json:"created_at"`
		UpdatedAt time.Time       `json:"updated_at"`
		Owner     *OwnerSummary   `json:"owner,omitempty"`
	}

	CategoryPatch struct {
		Name  *string          `json:"name"`
		Type  *TransactionType `json:"type"`
		Color *string          `json:"color"`
		Icon  *string          `json:"icon"`
	}

	// CategoryRef is the category excerpt embedded in a transaction.
	CategoryRef struct {
		ID    string          `json:"id"`
		Name  string          `json:"name"`
		Type  TransactionType `json:"type"`
		Color string          `json:"color"`
		Icon  string          `json:"icon"`
	}

	Transaction struct {
		ID          string          `json:"id"`
		UserID      string          `json:"user_id"`
		Type        TransactionType `json:"type"`
		Amount      Money           `json:"amount"`
		Description string          `json:"description"`
		Date        Date            `json:"date"`
		CategoryID  *string         `json:"category_id"`
		Category    *CategoryRef    `json:"category,omitempty"`
		Tags        []string        `json:"tags"`
		Notes       *string         `json:"notes"`
		IsPaid      bool            `json:"is_paid"`
		PaidAt      *time.Time      `json:"paid_at"`
		CreatedAt   time.Time       `json:"created_at"`
		UpdatedAt   time.Time       `json:"updated_at"`
		Owner       *OwnerSummary   `json:"owner,omitempty"`
	}

	// TransactionPatch is a partial transaction update. ClearCategory removes
	// the category reference; an empty Notes clears the notes.
	TransactionPatch struct {
		Type          *TransactionType
		Amount        *Money
		Description   *string
		Date          *Date
		CategoryID    *string
		ClearCategory bool
		Tags          *[]string
		Notes         *string
		IsPaid        *bool
	}

	CategoryFilter struct {
		OwnerID   string // empty means every owner
		Type      TransactionType
		WithOwner bool
	}

	TransactionFilter struct {
		OwnerID    string // empty means every owner
		StartDate  *Date
		EndDate    *Date
		Type       TransactionType
		CategoryID string
		IsPaid     *bool
		Limit      int // zero means no limit
		Offset     int
		WithOwner  bool
	}
)

var (
	ErrInvalidDate        = &Error{Kind: ErrValidation, Message: "date must be formatted as YYYY-MM-DD"}
	ErrInvalidType        = &Error{Kind: ErrValidation, Message: "type must be one of: income, expense"}
	ErrEmptyName          = &Error{Kind: ErrValidation, Message: "name is required"}
	ErrEmptyDescription   = &Error{Kind: ErrValidation, Message: "description is required"}
	ErrInvalidColor       = &Error{Kind: ErrValidation, Message: "color must be a hex value like #6366F1"}
	ErrInvalidUsername    = &Error{Kind: ErrValidation, Message: "username must be 3-30 characters of letters, digits, '.', '_' or '-'"}
	ErrInvalidDateRange   = &Error{Kind: ErrValidation, Message: "start_date must not be after end_date"}
	ErrInvalidPagination  = &Error{Kind: ErrValidation, Message: "limit must be between 1 and 1000 and offset must not be negative"}
	ErrTooManyTags        = &Error{Kind: ErrValidation, Message: "at most 20 tags are allowed"}
	ErrEmptyPatch         = &Error{Kind: ErrValidation, Message: "no updatable fields provided"}
	ErrDescriptionTooLong = &Error{Kind: ErrValidation, Message: "description too long (max 200 characters)"}
)

var (
	colorPattern    = regexp.MustCompile(`^#[0-9A-Fa-f]{6}$`)
	usernamePattern = regexp.MustCompile(`^[A-Za-z0-9_.-]{3,30}$`)
)

// ParseTransactionType validates s as income or expense.
func ParseTransactionType(s string) (TransactionType, error) {
	t := TransactionType(strings.ToLower(strings.TrimSpace(s)))
	if !t.IsValid() {
		return "", ErrInvalidType
	}
	return t, nil
}

func (t TransactionType) IsValid() bool {
	return t == Income || t == Expense
}

// NewDate creates a new Date from year, month, day
func NewDate(year, month, day int) Date {
	return Date{Time: time.Date(year, time.Month(month), day, 0, 0, 0, 0, time.UTC)}
}

// Today returns the current UTC calendar date.
func Today() Date {
	now := time.Now().UTC()
	return NewDate(now.Year(), int(now.Month()), now.Day())
}

// ParseDate parses a YYYY-MM-DD calendar date.
func ParseDate(s string) (Date, error) {
	t, err := time.Parse(DateLayout, strings.TrimSpace(s))
	if err != nil {
		return Date{}, ErrInvalidDate
	}
	return Date{Time: t}, nil
}

func (d Date) Validate() error {
	if d.IsZero() {
		return ErrInvalidDate
	}
	return nil
}

func (d Date) String() string {
	return d.Format(DateLayout)
}

func (d Date) MarshalJSON() ([]byte, error) {
	return json.Marshal(d.String())
}

func (d *Date) UnmarshalJSON(data []byte) error {
	var s string
	if err := json.Unmarshal(data, &s); err != nil {
		return ErrInvalidDate
	}
	parsed, err := ParseDate(s)
	if err != nil {
		return err
	}
	*d = parsed
	return nil
}

// NewCategory trims the input and applies the default color and icon.
func NewCategory(userID, name string, typ TransactionType, color, icon string) Category {
	c := Category{
		UserID: userID,
		Name:   strings.TrimSpace(name),
		Type:   typ,
		Color:  strings.TrimSpace(color),
		Icon:   strings.TrimSpace(icon),
	}
	if c.Color == "" {
		c.Color = DefaultCategoryColor
	}
	if c.Icon == "" {
		c.Icon = DefaultCategoryIcon
	}
	return c
}

func (c Category) Validate() error {
	if err := validateName(c.Name); err != nil {
		return err
	}
	if !c.Type.IsValid() {
		return ErrInvalidType
	}
	if !colorPattern.MatchString(c.Color) {
		return ErrInvalidColor
	}
	if utf8.RuneCountInString(c.Icon) > 50 {
		return Errorf(ErrValidation, "icon too long (max 50 characters)")
	}
	return nil
}

// Apply returns c with the patch applied. The patch is trimmed in place.
func (p *CategoryPatch) Apply(c Category) (Category, error) {
	if p.Name == nil && p.Type == nil && p.Color == nil && p.Icon == nil {
		return c, ErrEmptyPatch
	}
	if p.Name != nil {
		c.Name = strings.TrimSpace(*p.Name)
	}
	if p.Type != nil {
		c.Type = *p.Type
	}
	if p.Color != nil {
		c.Color = strings.TrimSpace(*p.Color)
		if c.Color == "" {
			c.Color = DefaultCategoryColor
		}
	}
	if p.Icon != nil {
		c.Icon = strings.TrimSpace(*p.Icon)
		if c.Icon == "" {
			c.Icon = DefaultCategoryIcon
		}
	}
	return c, c.Validate()
}

func validateName(name string) error {
	if strings.TrimSpace(name) == "" {
		return ErrEmptyName
	}
	if utf8.RuneCountInString(name) > maxNameLength {
		return Errorf(ErrValidation, "name too long (max %d characters)", maxNameLength)
	}
	return nil
}

func (t Transaction) Validate() error {
	if !t.Type.IsValid() {
		return ErrInvalidType
	}
	if err := t.Amount.Validate(); err != nil {
		return err
	}
	if strings.TrimSpace(t.Description) == "" {
		return ErrEmptyDescription
	}
	if utf8.RuneCountInString(t.Description) > maxDescriptionLength {
		return ErrDescriptionTooLong
	}
	if err := t.Date.Validate(); err != nil {
		return err
	}
	if len(t.Tags) > maxTags {
		return ErrTooManyTags
	}
	for _, tag := range t.Tags {
		if utf8.RuneCountInString(tag) > maxTagLength {
			return Errorf(ErrValidation, "tag %q too long (max %d characters)", tag, maxTagLength)
		}
	}
	if t.Notes != nil && utf8.RuneCountInString(*t.Notes) > maxNotesLength {
		return Errorf(ErrValidation, "notes too long (max %d characters)", maxNotesLength)
	}
	if t.IsPaid != (t.PaidAt != nil) {
		return Errorf(ErrValidation, "paid_at must be set exactly when the transaction is paid")
	}
	return nil
}

// Normalize trims text fields and deduplicates tags.
func (t *Transaction) Normalize() {
	t.Description = strings.TrimSpace(t.Description)
	t.Tags = NormalizeTags(t.Tags)
	if t.Notes != nil {
		notes := strings.TrimSpace(*t.Notes)
		if notes == "" {
			t.Notes = nil
		} else {
			t.Notes = &notes
		}
	}
	if t.CategoryID != nil && strings.TrimSpace(*t.CategoryID) == "" {
		t.CategoryID = nil
	}
}

// MarkPaid keeps IsPaid and PaidAt consistent for the given state.
func (t *Transaction) MarkPaid(paid bool, at time.Time) {
	if paid == t.IsPaid && (t.PaidAt != nil) == paid {
		return
	}
	t.IsPaid = paid
	if paid {
		at = at.UTC()
		t.PaidAt = &at
	} else {
		t.PaidAt = nil
	}
}

// IsEmpty reports whether the patch changes nothing.
func (p TransactionPatch) IsEmpty() bool {
	return p.Type == nil && p.Amount == nil && p.Description == nil && p.Date == nil &&
		p.CategoryID == nil && !p.ClearCategory && p.Tags == nil && p.Notes == nil && p.IsPaid == nil
}

// Apply returns t with the patch applied and validated. now stamps paid_at
// when the patch marks an unpaid transaction as paid.
func (p TransactionPatch) Apply(t Transaction, now time.Time) (Transaction, error) {
	if p.IsEmpty() {
		return t, ErrEmptyPatch
	}
	if p.Type != nil {
		t.Type = *p.Type
	}
	if p.Amount != nil {
		t.Amount = *p.Amount
	}
	if p.Description != nil {
		t.Description = *p.Description
	}
	if p.Date != nil {
		t.Date = *p.Date
	}
	if p.ClearCategory {
		t.CategoryID = nil
		t.Category = nil
	} else if p.CategoryID != nil {
		id := *p.CategoryID
		t.CategoryID = &id
	}
	if p.Tags != nil {
		t.Tags = append([]string(nil), (*p.Tags)...)
	}
	if p.Notes != nil {
		notes := *p.Notes
		t.Notes = &notes
	}
	if p.IsPaid != nil {
		t.MarkPaid(*p.IsPaid, now)
	}
	t.Normalize()
	return t, t.Validate()
}

// NormalizeTags trims, drops empties and removes duplicates preserving order.
func NormalizeTags(tags []string) []string {
	out := make([]string, 0, len(tags))
	seen := make(map[string]struct{}, len(tags))
	for _, tag := range tags {
		tag = strings.TrimSpace(tag)
		if tag == "" {
			continue
		}
		if _, ok := seen[tag]; ok {
			continue
		}
		seen[tag] = struct{}{}
		out = append(out, tag)
	}
	return out
}

// Validate checks a profile patch and trims its text fields in place.
func (p *ProfilePatch) Validate() error {
	for _, field := range []**string{&p.FullName, &p.Bio, &p.Phone, &p.Location, &p.Website, &p.AvatarURL, &p.Username} {
		if *field != nil {
			v := strings.TrimSpace(**field)
			*field = &v
		}
	}
	if p.FullName != nil && utf8.RuneCountInString(*p.FullName) > 200 {
		return Errorf(ErrValidation, "full_name too long (max 200 characters)")
	}
	if p.Bio != nil && utf8.RuneCountInString(*p.Bio) > 1000 {
		return Errorf(ErrValidation, "bio too long (max 1000 characters)")
	}
	if p.Username != nil && *p.Username != "" && !usernamePattern.MatchString(*p.Username) {
		return ErrInvalidUsername
	}
	return nil
}

// IsEmpty reports whether the patch changes nothing.
func (p ProfilePatch) IsEmpty() bool {
	return p.FullName == nil && p.Username == nil && p.Bio == nil && p.Phone == nil &&
		p.Location == nil && p.Website == nil && p.AvatarURL == nil && p.Preferences == nil &&
		p.IsStaff == nil && p.IsActive == nil && p.IsVerified == nil
}

// WithoutPrivileged drops the staff, active and verified flags.
func (p ProfilePatch) WithoutPrivileged() ProfilePatch {
	p.IsStaff = nil
	p.IsActive = nil
	p.IsVerified = nil
	return p
}

// Apply returns profile with the patch applied.
func (p ProfilePatch) Apply(profile Profile) Profile {
	if p.FullName != nil {
		profile.FullName = *p.FullName
	}
	if p.Username != nil {
		if *p.Username == "" {
			profile.Username = nil
		} else {
			u := *p.Username
			profile.Username = &u
		}
	}
	if p.Bio != nil {
		profile.Bio = *p.Bio
	}
	if p.Phone != nil {
		profile.Phone = *p.Phone
	}
	if p.Location != nil {
		profile.Location = *p.Location
	}
	if p.Website != nil {
		profile.Website = *p.Website
	}
	if p.AvatarURL != nil {
		profile.AvatarURL = *p.AvatarURL
	}
	if p.Preferences != nil {
		profile.Preferences = p.Preferences
	}
	if p.IsStaff != nil {
		profile.IsStaff = *p.IsStaff
	}
	if p.IsActive != nil {
		profile.IsActive = *p.IsActive
	}
	if p.IsVerified != nil {
		profile.IsVerified = *p.IsVerified
	}
	return profile
}

// Owner returns the summary used to annotate rows in staff views.
func (p Profile) Owner() OwnerSummary {
	return OwnerSummary{ID: p.ID, Email: p.Email, FullName: p.FullName, IsStaff: p.IsStaff}
}

func (f TransactionFilter) Validate() error {
	if f.Type != "" && !f.Type.IsValid() {
		return ErrInvalidType
	}
	if f.StartDate != nil && f.EndDate != nil && f.StartDate.After(f.EndDate.Time) {
		return ErrInvalidDateRange
	}
	if f.Limit < 0 || f.Limit > MaxListLimit || f.Offset < 0 {
		return ErrInvalidPagination
	}
	return nil
}
