package loader

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/url"
	"strings"
	"time"

	"go.uber.org/zap"
	"golang.org/x/time/rate"

	"github.com/Galitein/Ai1st-ai/internal/document"
)

// trelloBaseURL is the production API endpoint; tests override it.
const trelloBaseURL = "https://api.trello.com/1"

// TrelloLoader pulls boards, cards, members, and action logs through the
// Trello REST API and renders each entity as one chunk. Entities keep
// their Trello id as the source id, so re-running a sync upserts in place.
// The collection tag selects which entity kind a run loads.
type TrelloLoader struct {
	client  *http.Client
	limiter *rate.Limiter
	baseURL string
	logger  *zap.Logger
}

// NewTrelloLoader creates a loader. Trello allows 100 requests per 10
// seconds per token; the limiter stays below that.
func NewTrelloLoader(client *http.Client, logger *zap.Logger) *TrelloLoader {
	if client == nil {
		client = &http.Client{Timeout: 30 * time.Second}
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &TrelloLoader{
		client:  client,
		limiter: rate.NewLimiter(rate.Limit(8), 8),
		baseURL: trelloBaseURL,
		logger:  logger.Named("loader.trello"),
	}
}

type trelloBoard struct {
	ID   string `json:"id"`
	Name string `json:"name"`
	Desc string `json:"desc"`
}

type trelloCard struct {
	ID               string `json:"id"`
	Name             string `json:"name"`
	Desc             string `json:"desc"`
	Due              string `json:"due"`
	DateLastActivity string `json:"dateLastActivity"`
	Closed           bool   `json:"closed"`
	IDBoard          string `json:"idBoard"`
}

type trelloMember struct {
	ID       string `json:"id"`
	Username string `json:"username"`
	FullName string `json:"fullName"`
	Email    string `json:"email"`
}

type trelloAction struct {
	ID   string `json:"id"`
	Type string `json:"type"`
	Date string `json:"date"`
	Data struct {
		Text string `json:"text"`
		Card struct {
			Name string `json:"name"`
		} `json:"card"`
		Board struct {
			Name string `json:"name"`
		} `json:"board"`
	} `json:"data"`
	MemberCreator struct {
		FullName string `json:"fullName"`
		Username string `json:"username"`
	} `json:"memberCreator"`
}

// Load fetches the entity kind selected by the request's collection tag
// across all boards visible to the credentials. Board-level fetch failures
// skip that board.
func (l *TrelloLoader) Load(ctx context.Context, req Request) (document.Batch, error) {
	batch := document.Batch{AITID: req.AITID, Tag: req.Tag}
	if err := validateRequest(req); err != nil {
		return batch, err
	}
	if req.Trello == nil || req.Trello.Key == "" || req.Trello.Token == "" {
		return batch, fmt.Errorf("trello load requires api key and token")
	}

	switch req.Tag {
	case document.TagTrelloUser:
		return l.loadUser(ctx, req)
	case document.TagTrelloCard, document.TagTrelloMember, document.TagTrelloLog:
	default:
		return batch, fmt.Errorf("tag %q is not a trello collection", req.Tag)
	}

	var boards []trelloBoard
	if err := l.get(ctx, req.Trello, "/members/me/boards", nil, &boards); err != nil {
		return batch, fmt.Errorf("fetching boards: %w", err)
	}

	for _, board := range boards {
		chunks, err := l.loadBoard(ctx, req, board)
		if err != nil {
			l.logger.Warn("skipping trello board",
				zap.String("ait_id", req.AITID),
				zap.String("board", board.Name),
				zap.Error(err),
			)
			continue
		}
		batch.Chunks = append(batch.Chunks, chunks...)
	}

	for _, c := range batch.Chunks {
		batch.NaturalIDs = append(batch.NaturalIDs, c.SourceID)
	}
	if len(batch.Chunks) == 0 {
		return batch, ErrNoDocuments
	}
	return batch, nil
}

func (l *TrelloLoader) loadBoard(ctx context.Context, req Request, board trelloBoard) ([]document.Chunk, error) {
	switch req.Tag {
	case document.TagTrelloCard:
		var cards []trelloCard
		if err := l.get(ctx, req.Trello, "/boards/"+board.ID+"/cards", nil, &cards); err != nil {
			return nil, err
		}
		chunks := make([]document.Chunk, 0, len(cards))
		for _, card := range cards {
			chunks = append(chunks, entityChunk(req, card.ID, board.Name, renderCard(board, card), parseTrelloTime(card.DateLastActivity)))
		}
		return chunks, nil

	case document.TagTrelloMember:
		var members []trelloMember
		if err := l.get(ctx, req.Trello, "/boards/"+board.ID+"/members", nil, &members); err != nil {
			return nil, err
		}
		chunks := make([]document.Chunk, 0, len(members))
		for _, m := range members {
			chunks = append(chunks, entityChunk(req, m.ID, board.Name, renderMember(board, m), time.Time{}))
		}
		return chunks, nil

	case document.TagTrelloLog:
		var actions []trelloAction
		params := url.Values{"limit": {"1000"}}
		if err := l.get(ctx, req.Trello, "/boards/"+board.ID+"/actions", params, &actions); err != nil {
			return nil, err
		}
		chunks := make([]document.Chunk, 0, len(actions))
		for _, a := range actions {
			chunks = append(chunks, entityChunk(req, a.ID, board.Name, renderAction(board, a), parseTrelloTime(a.Date)))
		}
		return chunks, nil
	}
	return nil, fmt.Errorf("tag %q is not a board-level trello collection", req.Tag)
}

// loadUser indexes the credential owner's profile as a single chunk.
func (l *TrelloLoader) loadUser(ctx context.Context, req Request) (document.Batch, error) {
	batch := document.Batch{AITID: req.AITID, Tag: req.Tag}

	var me trelloMember
	if err := l.get(ctx, req.Trello, "/members/me", nil, &me); err != nil {
		return batch, fmt.Errorf("fetching member profile: %w", err)
	}
	chunk := entityChunk(req, me.ID, me.Username, renderUser(me), time.Time{})
	batch.Chunks = []document.Chunk{chunk}
	batch.NaturalIDs = []string{me.ID}
	return batch, nil
}

func (l *TrelloLoader) get(ctx context.Context, auth *TrelloAuth, apiPath string, params url.Values, out any) error {
	if err := l.limiter.Wait(ctx); err != nil {
		return err
	}
	if params == nil {
		params = url.Values{}
	}
	params.Set("key", auth.Key)
	params.Set("token", auth.Token)

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodGet, l.baseURL+apiPath+"?"+params.Encode(), nil)
	if err != nil {
		return err
	}
	resp, err := l.client.Do(httpReq)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	if resp.StatusCode == http.StatusUnauthorized {
		return fmt.Errorf("trello rejected credentials (status %d)", resp.StatusCode)
	}
	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("trello %s: unexpected status %d", apiPath, resp.StatusCode)
	}
	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return fmt.Errorf("decoding trello %s: %w", apiPath, err)
	}
	return nil
}

// entityChunk builds a chunk keyed by the entity's natural Trello id.
func entityChunk(req Request, id, name, content string, modified time.Time) document.Chunk {
	return document.Chunk{
		PageContent:  content,
		SourceID:     id,
		AITID:        req.AITID,
		Type:         req.Tag,
		FileName:     name,
		ModifiedTime: modified,
	}
}

func renderCard(board trelloBoard, card trelloCard) string {
	var b strings.Builder
	fmt.Fprintf(&b, "Card: %s\nBoard: %s\n", card.Name, board.Name)
	if card.Desc != "" {
		fmt.Fprintf(&b, "Description: %s\n", card.Desc)
	}
	if card.Due != "" {
		fmt.Fprintf(&b, "Due: %s\n", card.Due)
	}
	if card.Closed {
		b.WriteString("Status: archived\n")
	}
	return strings.TrimSpace(b.String())
}

func renderMember(board trelloBoard, m trelloMember) string {
	var b strings.Builder
	fmt.Fprintf(&b, "Member: %s (%s)\nBoard: %s\n", m.FullName, m.Username, board.Name)
	if m.Email != "" {
		fmt.Fprintf(&b, "Email: %s\n", m.Email)
	}
	return strings.TrimSpace(b.String())
}

func renderAction(board trelloBoard, a trelloAction) string {
	var b strings.Builder
	fmt.Fprintf(&b, "Activity: %s\nBoard: %s\n", a.Type, board.Name)
	if a.MemberCreator.FullName != "" {
		fmt.Fprintf(&b, "By: %s (%s)\n", a.MemberCreator.FullName, a.MemberCreator.Username)
	}
	if a.Data.Card.Name != "" {
		fmt.Fprintf(&b, "Card: %s\n", a.Data.Card.Name)
	}
	if a.Data.Text != "" {
		fmt.Fprintf(&b, "Comment: %s\n", a.Data.Text)
	}
	if a.Date != "" {
		fmt.Fprintf(&b, "Date: %s\n", a.Date)
	}
	return strings.TrimSpace(b.String())
}

func renderUser(m trelloMember) string {
	var b strings.Builder
	fmt.Fprintf(&b, "User: %s (%s)\n", m.FullName, m.Username)
	if m.Email != "" {
		fmt.Fprintf(&b, "Email: %s\n", m.Email)
	}
	return strings.TrimSpace(b.String())
}

func parseTrelloTime(s string) time.Time {
	t, err := time.Parse(time.RFC3339, s)
	if err != nil {
		return time.Time{}
	}
	return t
}
