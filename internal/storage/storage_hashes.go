package storage

const hashKey = "registrar:hashes"

// CommandHash returns the last pushed command hash for a registrar scope.
func (s *Storage) CommandHash(scope string) (string, bool) {
	var hashes map[string]string
	if _, err := s.ds.Get(hashKey, &hashes); err != nil {
		s.log.Warn().Err(err).Str("event", "storage.hash_read_failed").Msg("ignoring unreadable command hashes")
		return "", false
	}
	h, ok := hashes[scope]
	return h, ok
}

// SetCommandHash records the hash pushed for scope.
func (s *Storage) SetCommandHash(scope, hash string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	hashes := map[string]string{}
	if _, err := s.ds.Get(hashKey, &hashes); err != nil {
		return err
	}
	if hashes == nil {
		hashes = map[string]string{}
	}
	hashes[scope] = hash
	return s.ds.Put(hashKey, hashes)
}
