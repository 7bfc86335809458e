package notify

// Event types sent to clients.
const (
	TypeSubscribed        = "subscribed"
	TypeUnsubscribed      = "unsubscribed"
	TypeCommentAdded      = "comment_added"
	TypeReviewSubmitted   = "review_submitted"
	TypeSuggestionUpdated = "suggestion_updated"
	TypeAnalysisComplete  = "analysis_complete"
	TypeAnalysisError     = "analysis_error"
	TypeError             = "error"
)

// Inbound message types received from clients.
const (
	TypeSubscribePR      = "subscribe_pr"
	TypeUnsubscribePR    = "unsubscribe_pr"
	TypeNewComment       = "new_comment"
	TypeSuggestionStatus = "suggestion_status"
)

// Event is the {type, payload} envelope on the client channel.
type Event struct {
	Type    string `json:"type"`
	Payload any    `json:"payload"`
}

// Publisher fans an event out to the subscribers of a change set.
type Publisher interface {
	Publish(changeSetID string, ev Event)
}

// Discard drops every event; used when no hub is wired (e.g. the MCP process).
type Discard struct{}

func (Discard) Publish(string, Event) {}
