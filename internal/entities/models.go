package entities

import (
	"time"

	"github.com/uptrace/bun"

	"github.com/goliatone/go-repository-query/schema"
)

// ProfileModel is the bun model of the profiles table.
type ProfileModel struct {
	bun.BaseModel `bun:"table:profiles,alias:profile"`

	ID        string    `bun:"id,pk" json:"id"`
	Name      string    `bun:"name,notnull" json:"name"`
	Email     *string   `bun:"email" json:"email"`
	Bio       *string   `bun:"bio" json:"bio"`
	CreatedAt time.Time `bun:"created_at,nullzero" json:"createdAt"`
}

// TodoModel is the bun model of the todos table.
type TodoModel struct {
	bun.BaseModel `bun:"table:todos,alias:todo"`

	ID          string        `bun:"id,pk" json:"id"`
	Title       string        `bun:"title,notnull" json:"title"`
	Description *string       `bun:"description" json:"description"`
	Done        bool          `bun:"done" json:"done"`
	Priority    int           `bun:"priority" json:"priority"`
	ProfileID   *string       `bun:"profile_id" json:"profileId"`
	CreatedAt   time.Time     `bun:"created_at,nullzero" json:"createdAt"`
	Profile     *ProfileModel `bun:"rel:belongs-to,join:profile_id=id" json:"profile,omitempty"`
}

// ProfileRecord keys a profile model by public field names.
func ProfileRecord(m ProfileModel) schema.Record {
	return schema.Record{
		"id":        m.ID,
		"name":      m.Name,
		"email":     optional(m.Email),
		"bio":       optional(m.Bio),
		"createdAt": optionalTime(m.CreatedAt),
	}
}

// TodoRecord keys a todo model by public field names. The profile relation
// is attached under its name, nil when not loaded; the shaper only keeps it
// when it was included.
func TodoRecord(m TodoModel) schema.Record {
	rec := schema.Record{
		"id":          m.ID,
		"title":       m.Title,
		"description": optional(m.Description),
		"done":        m.Done,
		"priority":    m.Priority,
		"profileId":   optional(m.ProfileID),
		"createdAt":   optionalTime(m.CreatedAt),
	}
	rec["profile"] = nil
	if m.Profile != nil {
		rec["profile"] = ProfileRecord(*m.Profile)
	}
	return rec
}

func optional(s *string) any {
	if s == nil {
		return nil
	}
	return *s
}

func optionalTime(t time.Time) any {
	if t.IsZero() {
		return nil
	}
	return t
}
