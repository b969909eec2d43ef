// Package sample generates demo users and tickets from an embedded dataset.
package sample

import (
	"context"
	_ "embed"
	"errors"
	"fmt"
	"math/rand/v2"
	"time"

	"github.com/google/uuid"
	"github.com/rs/xid"
	"gopkg.in/yaml.v3"

	"github.com/spec-kit/service-desk/internal/domain"
	"github.com/spec-kit/service-desk/internal/repository"
	apperrors "github.com/spec-kit/service-desk/pkg/util/errorutil"
)

//go:embed dataset.yaml
var datasetYAML []byte

// Dataset is the raw material for generated data.
type Dataset struct {
	Users    []UserTemplate   `yaml:"users"`
	Tickets  []TicketTemplate `yaml:"tickets"`
	Comments []string         `yaml:"comments"`
}

// UserTemplate describes one sample account.
type UserTemplate struct {
	Name  string      `yaml:"name"`
	Email string      `yaml:"email"`
	Role  domain.Role `yaml:"role"`
}

// TicketTemplate is the text of one sample ticket.
type TicketTemplate struct {
	Category    domain.TicketCategory `yaml:"category"`
	Title       string                `yaml:"title"`
	Description string                `yaml:"description"`
}

// Options tune Seed.
type Options struct {
	// Count is the number of tickets to generate.
	Count int
	// Seed makes generation reproducible.
	Seed uint64
	// Now is the newest possible timestamp.
	Now time.Time
	// PasswordHash is given to every sample user. Empty leaves them
	// without a password.
	PasswordHash string
}

// Result reports what Seed wrote.
type Result struct {
	Users   []domain.User
	Tickets int
}

// Default parses the embedded dataset.
func Default() (*Dataset, error) {
	return Parse(datasetYAML)
}

// Parse decodes and checks a dataset.
func Parse(data []byte) (*Dataset, error) {
	var ds Dataset
	if err := yaml.Unmarshal(data, &ds); err != nil {
		return nil, fmt.Errorf("sample: decode dataset: %w", err)
	}
	if err := ds.validate(); err != nil {
		return nil, err
	}
	return &ds, nil
}

func (ds *Dataset) validate() error {
	if len(ds.Tickets) == 0 {
		return errors.New("sample: dataset has no tickets")
	}
	var members, admins int
	for _, u := range ds.Users {
		switch u.Role {
		case domain.RoleMember:
			members++
		case domain.RoleAdmin:
			admins++
		default:
			return fmt.Errorf("sample: user %s has unknown role %q", u.Email, u.Role)
		}
	}
	if members == 0 || admins == 0 {
		return errors.New("sample: dataset needs at least one member and one admin")
	}
	for _, tpl := range ds.Tickets {
		input := domain.NewTicket{Title: tpl.Title, Description: tpl.Description, Category: tpl.Category}.Normalize()
		if err := input.Validate(); err != nil {
			return fmt.Errorf("sample: ticket %q: %w", tpl.Title, err)
		}
	}
	return nil
}

// Seed creates the dataset's users (reusing accounts that already exist) and
// opts.Count generated tickets.
func Seed(ctx context.Context, ds *Dataset, tickets repository.TicketRepository, users repository.UserRepository, opts Options) (*Result, error) {
	if opts.Now.IsZero() {
		opts.Now = time.Now().UTC()
	}
	opts.Now = opts.Now.Truncate(time.Millisecond)

	result := &Result{}
	for _, tpl := range ds.Users {
		user, err := ensureUser(ctx, users, tpl, opts)
		if err != nil {
			return nil, err
		}
		result.Users = append(result.Users, *user)
	}

	gen := NewGenerator(ds, result.Users, opts.Seed)
	for i := 0; i < opts.Count; i++ {
		ticket := gen.Ticket(opts.Now)
		if err := tickets.Create(ctx, ticket); err != nil {
			return nil, fmt.Errorf("sample: create ticket: %w", err)
		}
		result.Tickets++
	}
	return result, nil
}

func ensureUser(ctx context.Context, users repository.UserRepository, tpl UserTemplate, opts Options) (*domain.User, error) {
	existing, err := users.GetByEmail(ctx, tpl.Email)
	if err == nil {
		return existing, nil
	}
	if !errors.Is(err, apperrors.ErrNotFound) {
		return nil, fmt.Errorf("sample: lookup %s: %w", tpl.Email, err)
	}

	user := &domain.User{
		ID:           uuid.NewString(),
		Name:         tpl.Name,
		Email:        tpl.Email,
		Role:         tpl.Role,
		PasswordHash: opts.PasswordHash,
		Provider:     domain.ProviderPassword,
		CreatedAt:    opts.Now,
		LastLoginAt:  opts.Now,
	}
	if err := users.Create(ctx, user); err != nil {
		return nil, fmt.Errorf("sample: create %s: %w", tpl.Email, err)
	}
	return user, nil
}

// Generator produces tickets that satisfy every lifecycle invariant: the
// thread starts with the creation comment, timestamps never go backwards
// and UpdatedAt matches the last activity.
type Generator struct {
	ds      *Dataset
	rng     *rand.Rand
	members []domain.User
	admins  []domain.User
}

// NewGenerator builds a generator over users. It panics if users lacks a
// member or an admin; Seed always supplies both.
func NewGenerator(ds *Dataset, users []domain.User, seed uint64) *Generator {
	g := &Generator{ds: ds, rng: rand.New(rand.NewPCG(seed, seed^0x9e3779b97f4a7c15))}
	for _, u := range users {
		if u.IsAdmin() {
			g.admins = append(g.admins, u)
		} else {
			g.members = append(g.members, u)
		}
	}
	if len(g.members) == 0 || len(g.admins) == 0 {
		panic("sample: generator needs members and admins")
	}
	return g
}

// Ticket generates one ticket created within the 30 days before now.
func (g *Generator) Ticket(now time.Time) *domain.Ticket {
	tpl := g.ds.Tickets[g.rng.IntN(len(g.ds.Tickets))]
	creator := g.members[g.rng.IntN(len(g.members))]
	admin := g.admins[g.rng.IntN(len(g.admins))]

	age := 24*time.Hour + time.Duration(g.rng.IntN(29*24*60))*time.Minute
	createdAt := now.Add(-age)

	ticket := &domain.Ticket{
		ID:          uuid.NewString(),
		Title:       tpl.Title,
		Description: tpl.Description,
		Category:    tpl.Category,
		Priority:    domain.TicketPriorities[g.rng.IntN(len(domain.TicketPriorities))],
		Status:      domain.TicketStatuses[g.rng.IntN(len(domain.TicketStatuses))],
		CreatedBy:   creator.ID,
		CreatedAt:   createdAt,
		Comments: []domain.Comment{{
			ID:        xid.New().String(),
			Text:      domain.SystemCommentCreated,
			Author:    creator.ID,
			Timestamp: createdAt,
		}},
	}
	if ticket.Status != domain.TicketStatusOpen {
		assignee := admin.ID
		ticket.AssignedTo = &assignee
	}

	last := createdAt
	if len(g.ds.Comments) > 0 {
		for n := g.rng.IntN(4); n > 0; n-- {
			last = last.Add(time.Duration(1+g.rng.IntN(180)) * time.Minute)
			author := creator.ID
			if g.rng.IntN(2) == 0 {
				author = admin.ID
			}
			ticket.Comments = append(ticket.Comments, domain.Comment{
				ID:        xid.New().String(),
				Text:      g.ds.Comments[g.rng.IntN(len(g.ds.Comments))],
				Author:    author,
				Timestamp: last,
			})
		}
	}
	ticket.UpdatedAt = last
	return ticket
}
