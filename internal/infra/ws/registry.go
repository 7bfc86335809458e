package ws

// Registry tracks which change sets each client is subscribed to.
// It is not safe for concurrent use; Hub guards it with its own lock.
type Registry struct {
	byClient map[string]map[string]struct{}
}

func NewRegistry() *Registry {
	return &Registry{byClient: make(map[string]map[string]struct{})}
}

// Reset gives client an empty subscription set.
func (r *Registry) Reset(client string) {
	r.byClient[client] = make(map[string]struct{})
}

// Drop forgets client entirely.
func (r *Registry) Drop(client string) {
	delete(r.byClient, client)
}

// Add subscribes client to cs; a client without a set (not connected) is ignored.
func (r *Registry) Add(client, cs string) bool {
	set, ok := r.byClient[client]
	if !ok {
		return false
	}
	set[cs] = struct{}{}
	return true
}

func (r *Registry) Remove(client, cs string) bool {
	set, ok := r.byClient[client]
	if !ok {
		return false
	}
	delete(set, cs)
	return true
}

// Subscribers returns every client subscribed to cs, in no particular order.
func (r *Registry) Subscribers(cs string) []string {
	var out []string
	for client, set := range r.byClient {
		if _, ok := set[cs]; ok {
			out = append(out, client)
		}
	}
	return out
}

// Of returns a copy of client's subscriptions.
func (r *Registry) Of(client string) []string {
	set := r.byClient[client]
	out := make([]string, 0, len(set))
	for cs := range set {
		out = append(out, cs)
	}
	return out
}
