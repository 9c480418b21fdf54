package scheduler

func (s *Service) Snapshot() Snapshot {
	s.mu.Lock()
	enabled := s.cfg.Enabled
	tz := s.cfg.Timezone
	defs := make([]jobDef, len(s.defs))
	copy(defs, s.defs)
	c := s.c
	loc := s.loc
	q := s.queue
	s.mu.Unlock()

	if loc == nil {
		loc = s.loadLocationLocked()
	}
	if tz == "" {
		tz = loc.String()
	}

	jobs := make([]JobInfo, 0, len(defs))
	for _, d := range defs {
		info := JobInfo{Name: d.name, Spec: d.spec, Timeout: d.timeout}
		if c != nil && d.entryID != 0 {
			e := c.Entry(d.entryID)
			info.Next, info.Prev = e.Next, e.Prev
		}
		jobs = append(jobs, info)
	}

	s.hmu.Lock()
	hist := make([]HistoryItem, len(s.history))
	copy(hist, s.history)
	s.hmu.Unlock()

	qLen, qCap := 0, 0
	if q != nil {
		qLen, qCap = len(q), cap(q)
	}

	return Snapshot{
		Enabled:  enabled,
		Timezone: tz,
		Workers:  s.cfg.Workers,
		QueueLen: qLen,
		QueueCap: qCap,
		Jobs:     jobs,
		History:  hist,
	}
}
