package http

import (
	"encoding/json"
	"errors"
	"log"
	"net/http"
	"net/http/pprof"
	"strconv"
	"strings"
	"time"

	"github.com/julienschmidt/httprouter"
	"github.com/skip2/go-qrcode"

	"pfp-quiz-service/internal/app"
	"pfp-quiz-service/internal/domain"
)

const qrSize = 320

// RouterOptions toggles optional endpoints.
type RouterOptions struct {
	Pprof   bool
	Verbose bool
	// PresenceRefresh overrides the websocket presence refresh interval.
	PresenceRefresh time.Duration
}

// NewRouter mounts the websocket endpoint next to the read-only HTTP API.
func NewRouter(service *app.GameService, opts RouterOptions) http.Handler {
	mux := httprouter.New()

	mux.PanicHandler = func(w http.ResponseWriter, r *http.Request, i any) {
		log.Printf("panic serving %s: %v", r.URL.Path, i)
		writeJSON(w, http.StatusInternalServerError, errorPayload{Message: "internal error"})
	}

	ws := NewWSHandler(service)
	ws.Verbose = opts.Verbose
	if opts.PresenceRefresh > 0 {
		ws.PresenceRefresh = opts.PresenceRefresh
	}
	mux.HandlerFunc(http.MethodGet, "/ws", ws.ServeWS)
	mux.GET("/healthz", serveHealthCheck)
	mux.GET("/leaderboard", serveLeaderboards(service))
	mux.GET("/leaderboard/daily", serveDaily(service))
	mux.GET("/leaderboard/alltime", serveAllTime(service))
	mux.GET("/profiles/:username/qr", serveProfileQR)
	mux.GET("/players/:fid/online", serveOnline(service))

	if opts.Pprof {
		registerProfileHandlers(mux)
	}
	return mux
}

func serveHealthCheck(w http.ResponseWriter, _ *http.Request, _ httprouter.Params) {
	w.Header().Set("Content-Type", "text/plain; charset=utf-8")
	_, _ = w.Write([]byte("ok"))
}

func serveLeaderboards(service *app.GameService) httprouter.Handle {
	return func(w http.ResponseWriter, r *http.Request, _ httprouter.Params) {
		boards, ok := loadBoards(service, w, r)
		if !ok {
			return
		}
		writeJSON(w, http.StatusOK, boards)
	}
}

func serveDaily(service *app.GameService) httprouter.Handle {
	return func(w http.ResponseWriter, r *http.Request, _ httprouter.Params) {
		boards, ok := loadBoards(service, w, r)
		if !ok {
			return
		}
		writeJSON(w, http.StatusOK, struct {
			Date    string              `json:"date"`
			Entries []domain.DailyEntry `json:"entries"`
		}{boards.Date, boards.Daily})
	}
}

func serveAllTime(service *app.GameService) httprouter.Handle {
	return func(w http.ResponseWriter, r *http.Request, _ httprouter.Params) {
		boards, ok := loadBoards(service, w, r)
		if !ok {
			return
		}
		writeJSON(w, http.StatusOK, struct {
			Entries []domain.AllTimeEntry `json:"entries"`
		}{boards.AllTime})
	}
}

// loadBoards reads ?date= and ?limit= and fetches both boards. A storage
// failure still answers 200 with whatever loaded, matching the in-game view.
func loadBoards(service *app.GameService, w http.ResponseWriter, r *http.Request) (app.Boards, bool) {
	q := r.URL.Query()
	limit := 0
	if raw := q.Get("limit"); raw != "" {
		n, err := strconv.Atoi(raw)
		if err != nil || n <= 0 {
			writeJSON(w, http.StatusBadRequest, errorPayload{Message: "limit must be a positive integer", Code: "bad_request"})
			return app.Boards{}, false
		}
		limit = n
	}

	boards, err := service.Leaderboards(r.Context(), q.Get("date"), limit)
	switch {
	case errors.Is(err, domain.ErrStorageUnavailable):
		log.Printf("leaderboards for %s: %v", boards.Date, err)
	case err != nil:
		writeJSON(w, http.StatusBadRequest, errorPayload{Message: err.Error(), Code: "bad_request"})
		return app.Boards{}, false
	}
	return boards, true
}

func serveOnline(service *app.GameService) httprouter.Handle {
	return func(w http.ResponseWriter, r *http.Request, ps httprouter.Params) {
		fid, err := strconv.ParseInt(ps.ByName("fid"), 10, 64)
		if err != nil || fid <= 0 {
			writeJSON(w, http.StatusBadRequest, errorPayload{Message: "fid must be a positive integer", Code: "bad_request"})
			return
		}
		online, err := service.Online(r.Context(), fid)
		if err != nil {
			log.Printf("presence of %d: %v", fid, err)
			writeJSON(w, http.StatusServiceUnavailable, errorPayload{Message: "presence unavailable", Code: "unavailable"})
			return
		}
		writeJSON(w, http.StatusOK, struct {
			FID    int64 `json:"fid"`
			Online bool  `json:"online"`
		}{fid, online})
	}
}

// serveProfileQR renders a PNG QR code linking to the profile on the social client.
func serveProfileQR(w http.ResponseWriter, _ *http.Request, ps httprouter.Params) {
	username := strings.TrimSpace(ps.ByName("username"))
	if username == "" {
		http.Error(w, "missing username", http.StatusBadRequest)
		return
	}

	png, err := qrcode.Encode(domain.Profile{Username: username}.ExternalURL(), qrcode.Medium, qrSize)
	if err != nil {
		http.Error(w, "qr generation failed", http.StatusInternalServerError)
		return
	}

	w.Header().Set("Content-Type", "image/png")
	_, _ = w.Write(png)
}

func registerProfileHandlers(mux *httprouter.Router) {
	mux.Handler(http.MethodGet, "/debug/pprof/allocs", pprof.Handler("allocs"))
	mux.Handler(http.MethodGet, "/debug/pprof/goroutine", pprof.Handler("goroutine"))
	mux.Handler(http.MethodGet, "/debug/pprof/heap", pprof.Handler("heap"))
	mux.Handler(http.MethodGet, "/debug/pprof/mutex", pprof.Handler("mutex"))
	mux.HandlerFunc(http.MethodGet, "/debug/pprof/profile", pprof.Profile)
	mux.HandlerFunc(http.MethodGet, "/debug/pprof/trace", pprof.Trace)
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		log.Printf("write response: %v", err)
	}
}
