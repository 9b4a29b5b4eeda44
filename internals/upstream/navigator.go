package upstream

import (
	"context"
	"net/http"
)

// SearchHit is one service record returned by the navigator API. Nullable
// upstream fields are pointers.
type SearchHit struct {
	ServiceCampusKey          string   `json:"service_campus_key"`
	OrganisationName          *string  `json:"organisation_name,omitempty"`
	ServiceName               *string  `json:"service_name,omitempty"`
	CampusName                *string  `json:"campus_name,omitempty"`
	Address                   *string  `json:"address,omitempty"`
	Suburb                    *string  `json:"suburb,omitempty"`
	State                     *string  `json:"state,omitempty"`
	Postcode                  *string  `json:"postcode,omitempty"`
	Phone                     *string  `json:"phone,omitempty"`
	Email                     *string  `json:"email,omitempty"`
	Website                   *string  `json:"website,omitempty"`
	Costs                     *string  `json:"costs,omitempty"`
	ReferralPathways          *string  `json:"referral_pathways,omitempty"`
	TargetPopulations         *string  `json:"target_populations,omitempty"`
	DeliveryMethods           *string  `json:"delivery_methods,omitempty"`
	LevelsOfCare              *string  `json:"levels_of_care,omitempty"`
	ExpectedWaitTime          *string  `json:"expected_wait_time,omitempty"`
	OpHours24x7               *bool    `json:"op_hours_24_7,omitempty"`
	OpHoursStandard           *bool    `json:"op_hours_standard,omitempty"`
	OpHoursExtended           *bool    `json:"op_hours_extended,omitempty"`
	OpHoursExtendedDetails    *string  `json:"op_hours_extended_details,omitempty"`
	Notes                     *string  `json:"notes,omitempty"`
	EligibilityAndDescription *string  `json:"eligibility_and_description,omitempty"`
	CosineSimilarity          *float64 `json:"cosine_similarity,omitempty"`
}

// ChatRequest is the body of POST /chat/.
type ChatRequest struct {
	Message   string  `json:"message"`
	SessionID *string `json:"session_id"`
}

// ChatReply is the navigator's answer to one chat turn.
type ChatReply struct {
	SessionID            string      `json:"session_id"`
	Reply                string      `json:"reply"`
	Services             []SearchHit `json:"services"`
	Top1Similarity       float64     `json:"top1_similarity"`
	DisambiguationNeeded bool        `json:"disambiguation_needed"`
	ConversationLength   int         `json:"conversation_length"`
	RequestServiceChange bool        `json:"request_service_change"`
}

// SearchRequest is the body of POST /search/semantic.
type SearchRequest struct {
	Query               string   `json:"query"`
	SimilarityThreshold *float64 `json:"similarity_threshold"`
	MaxResults          *int     `json:"max_results"`
}

// SearchResult is the navigator's semantic search answer.
type SearchResult struct {
	Items                []SearchHit `json:"items"`
	Top1Similarity       float64     `json:"top1_similarity"`
	DisambiguationNeeded bool        `json:"disambiguation_needed"`
}

// Search defaults applied when the caller leaves them unset.
const (
	DefaultSimilarityThreshold = 0.0
	DefaultMaxResults          = 5
)

// Navigator talks to the mental health service navigator API.
type Navigator struct {
	base
}

func NewNavigator(baseURL string, httpClient *http.Client) *Navigator {
	return &Navigator{base: newBase("Mental Health", baseURL, httpClient)}
}

// SendChatMessage forwards one user turn. An empty sessionID starts a new
// conversation.
func (n *Navigator) SendChatMessage(ctx context.Context, message, sessionID string) (*ChatReply, error) {
	req := ChatRequest{Message: message}
	if sessionID != "" {
		req.SessionID = &sessionID
	}
	var reply ChatReply
	if err := n.doJSON(ctx, http.MethodPost, "/chat/", nil, req, &reply); err != nil {
		return nil, err
	}
	if reply.Services == nil {
		reply.Services = []SearchHit{}
	}
	return &reply, nil
}

// SearchServices runs a semantic search, filling in the default threshold
// and result count.
func (n *Navigator) SearchServices(ctx context.Context, req SearchRequest) (*SearchResult, error) {
	if req.SimilarityThreshold == nil {
		t := DefaultSimilarityThreshold
		req.SimilarityThreshold = &t
	}
	if req.MaxResults == nil {
		m := DefaultMaxResults
		req.MaxResults = &m
	}
	var res SearchResult
	if err := n.doJSON(ctx, http.MethodPost, "/search/semantic", nil, req, &res); err != nil {
		return nil, err
	}
	if res.Items == nil {
		res.Items = []SearchHit{}
	}
	return &res, nil
}

// CheckHealth reports whether the navigator's search index is ready.
// Unconfigured or unreachable means not ready.
func (n *Navigator) CheckHealth(ctx context.Context) bool {
	return n.doJSON(ctx, http.MethodGet, "/search/_ready", nil, nil, nil) == nil
}
