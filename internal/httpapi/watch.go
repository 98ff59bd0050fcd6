package httpapi

import (
	"net/http"
	"time"

	mp "github.com/R3E-Network/listing_marketplace/internal/marketplace"
)

const watchWriteWait = 10 * time.Second

// watchListing streams the listing view over a websocket. The current view is
// sent on connect, then again whenever a poll yields a different view.
func (s *Server) watchListing(w http.ResponseWriter, r *http.Request) {
	app, err := appID(r)
	if err != nil {
		writeError(w, http.StatusBadRequest, err)
		return
	}
	conn, err := s.upgrader.Upgrade(w, r, nil)
	if err != nil {
		s.log.WithError(err).Warn("websocket upgrade failed")
		return
	}
	defer conn.Close()

	ctx := r.Context()
	closed := make(chan struct{})
	go func() {
		defer close(closed)
		for {
			if _, _, err := conn.NextReader(); err != nil {
				return
			}
		}
	}()

	send := func(view mp.ListingView) bool {
		_ = conn.SetWriteDeadline(time.Now().Add(watchWriteWait))
		return conn.WriteJSON(view) == nil
	}

	last := s.ctrl.RefreshListingView(ctx, app)
	if !send(last) {
		return
	}

	ticker := time.NewTicker(s.opts.WatchInterval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-closed:
			return
		case <-ticker.C:
			view := s.ctrl.RefreshListingView(ctx, app)
			if view.Equal(last) {
				continue
			}
			last = view
			if !send(view) {
				return
			}
		}
	}
}
