package server

// Allow marks addr as allowlisted (policy value true).
func (s *Server) Allow(addr string) { s.policy[addr] = true }

// Deny marks addr as denylisted (policy value false).
func (s *Server) Deny(addr string) { s.policy[addr] = false }

// permits reports whether addr may connect under the server's current
// policy mode. Denylist mode rejects addresses explicitly marked false;
// allowlist mode accepts only addresses explicitly marked true.
func (s *Server) permits(addr string) bool {
	v, present := s.policy[addr]
	if s.props.UseWhitelist {
		return present && v
	}
	if s.props.UseBlacklist {
		return !present || v
	}
	return true
}
