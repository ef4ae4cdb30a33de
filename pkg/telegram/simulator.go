package telegram

import (
	"context"
	"encoding/json"
	"fmt"
	"math/rand"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/sietchlabs/scraper-go/pkg/request"
	"github.com/sietchlabs/scraper-go/pkg/types"
)

// Default simulator parameters
const (
	// DefaultMembersPerGroup is how many members each simulated group holds
	DefaultMembersPerGroup = 10
	// DefaultInviteFailureRate is the fraction of simulated invites rejected
	DefaultInviteFailureRate = 0.2
)

// Simulator is a Transport that fabricates member pages and invite
// responses instead of reaching the network. It exists so the full
// pipeline can run without a reachable endpoint; tests and the real HTTP
// transport are interchangeable behind the same interface.
type Simulator struct {
	// MembersPerGroup is the simulated group size
	MembersPerGroup int
	// InviteFailureRate is the probability a simulated invite fails
	InviteFailureRate float64
}

// NewSimulator creates a simulator with default parameters.
func NewSimulator() *Simulator {
	return &Simulator{
		MembersPerGroup:   DefaultMembersPerGroup,
		InviteFailureRate: DefaultInviteFailureRate,
	}
}

// Do fabricates a response for the given request. Member-page requests are
// answered with randomized users honoring the limit and cursor query
// parameters; invite requests succeed or fail at the configured rate.
func (s *Simulator) Do(ctx context.Context, req *request.Request) (*request.Response, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	if strings.Contains(req.Target, "/inviteToChannel") {
		return s.invite()
	}
	if strings.Contains(req.Target, "/members") {
		return s.memberPage(req.Target)
	}
	return &request.Response{StatusCode: http.StatusNotFound}, nil
}

func (s *Simulator) invite() (*request.Response, error) {
	if rand.Float64() < s.InviteFailureRate {
		return &request.Response{
			StatusCode: http.StatusBadRequest,
			Body:       []byte(`{"ok":false}`),
		}, nil
	}
	return &request.Response{
		StatusCode: http.StatusOK,
		Body:       []byte(`{"ok":true}`),
	}, nil
}

func (s *Simulator) memberPage(target string) (*request.Response, error) {
	u, err := url.Parse(target)
	if err != nil {
		return nil, fmt.Errorf("telegram: parsing simulated target: %w", err)
	}

	limit := DefaultMembersPerGroup
	if v, err := strconv.Atoi(u.Query().Get("limit")); err == nil && v > 0 {
		limit = v
	}
	offset := 0
	if v, err := strconv.Atoi(u.Query().Get("cursor")); err == nil && v > 0 {
		offset = v
	}

	total := s.MembersPerGroup
	if total <= 0 {
		total = DefaultMembersPerGroup
	}

	page := types.MemberPage{}
	for i := offset; i < total && i < offset+limit; i++ {
		page.Members = append(page.Members, randomMember(i))
	}
	if offset+limit < total {
		page.NextCursor = strconv.Itoa(offset + limit)
	}

	body, err := json.Marshal(page)
	if err != nil {
		return nil, fmt.Errorf("telegram: marshaling simulated page: %w", err)
	}
	return &request.Response{StatusCode: http.StatusOK, Body: body}, nil
}

func randomMember(i int) types.Record {
	statuses := []types.Status{types.StatusActive, types.StatusInactive, types.StatusBanned}

	username := ""
	if rand.Float64() > 0.3 {
		username = fmt.Sprintf("user_%d", i)
	}

	now := time.Now().UTC()
	return types.Record{
		UID:           100000000 + rand.Int63n(900000000),
		Username:      username,
		Status:        statuses[rand.Intn(len(statuses))],
		ActivityLevel: rand.Intn(11),
		JoinDate:      now.AddDate(0, 0, -rand.Intn(365)),
		LastSeen:      now,
		MessageCount:  rand.Intn(1001),
		IsAdmin:       rand.Float64() > 0.9,
	}
}
