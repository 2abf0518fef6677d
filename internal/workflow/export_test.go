package workflow

// KeyLockCount reports how many source keys currently hold a lock entry.
func (m *Manager) KeyLockCount() int {
	return m.keys.size()
}
