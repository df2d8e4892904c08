package www

import (
	"log/slog"
	"net/http"
)

func (s *Server) handleStatusPage(w http.ResponseWriter, r *http.Request) {
	if r.URL.Path != "/" {
		http.NotFound(w, r)
		return
	}

	snapshot, err := s.db.GetLatestSnapshot(r.Context())
	if err != nil {
		s.logger.Error("can't load snapshot for status page", slog.Any("error", err))
		http.Error(w, "internal error", http.StatusInternalServerError)
		return
	}

	if err := s.tm.ExecuteToWriter("status.html", snapshot, &w); err != nil {
		s.logger.Error("status page rendering failed", slog.Any("error", err))
		http.Error(w, "internal error", http.StatusInternalServerError)
	}
}

func (s *Server) handleSnapshot(w http.ResponseWriter, r *http.Request) {
	snapshot, err := s.db.GetLatestSnapshot(r.Context())
	if err != nil {
		s.logger.Error("can't load snapshot", slog.Any("error", err))
		http.Error(w, "internal error", http.StatusInternalServerError)
		return
	}
	if snapshot == nil {
		http.Error(w, "no run has completed yet", http.StatusNotFound)
		return
	}

	writeJSON(w, http.StatusOK, snapshot)
}

func (s *Server) handleHistory(w http.ResponseWriter, r *http.Request) {
	limit := intOrDefault(r.URL, "limit", 96)
	points, err := s.db.GetHistoryTail(r.Context(), limit)
	if err != nil {
		s.logger.Error("can't load history", slog.Any("error", err))
		http.Error(w, "internal error", http.StatusInternalServerError)
		return
	}

	writeJSON(w, http.StatusOK, points)
}

// The backtest is served from the latest snapshot; a missing report is a
// valid "null" answer, not an error.
func (s *Server) handleBacktest(w http.ResponseWriter, r *http.Request) {
	snapshot, err := s.db.GetLatestSnapshot(r.Context())
	if err != nil {
		s.logger.Error("can't load snapshot for backtest", slog.Any("error", err))
		http.Error(w, "internal error", http.StatusInternalServerError)
		return
	}
	if snapshot == nil {
		writeJSON(w, http.StatusOK, nil)
		return
	}

	writeJSON(w, http.StatusOK, snapshot.Backtest)
}

func (s *Server) handleLog(w http.ResponseWriter, r *http.Request) {
	page := intOrDefault(r.URL, "page", 1)
	pageSize := intOrDefault(r.URL, "page_size", 50)
	minLevel := intOrDefault(r.URL, "min_level", 0)

	entries, err := s.db.GetLogEntries(r.Context(), slog.Level(minLevel), page, pageSize)
	if err != nil {
		s.logger.Error("can't load log entries", slog.Any("error", err))
		http.Error(w, "internal error", http.StatusInternalServerError)
		return
	}

	writeJSON(w, http.StatusOK, entries)
}
