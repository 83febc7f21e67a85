package cmd

import (
	"encoding/json"
	"io"
	"net/http"
	"strconv"
	"sync"

	"github.com/google/uuid"
	"github.com/gorilla/mux"
	"github.com/jsphweid/melodex/catalog"
	"github.com/jsphweid/melodex/constants"
	"github.com/jsphweid/melodex/db"
	"github.com/jsphweid/melodex/file"
	"github.com/jsphweid/melodex/midi"
	"github.com/jsphweid/melodex/model"
	"github.com/jsphweid/melodex/onset"
	"github.com/jsphweid/melodex/pcm"
	"github.com/pkg/errors"
	"github.com/rs/cors"
	log "github.com/sirupsen/logrus"
	"github.com/spf13/cobra"
	"golang.org/x/time/rate"
)

const (
	maxBodyBytes = 64 * 1024 * 1024
	defaultLimit = 50
)

var (
	servedCatalog *catalog.Reader
	catalogItems  []model.CatalogListItem
	serveCache    *db.Cache
	detector      *onset.Detector
	detectorErr   error
	detectorOnce  sync.Once
)

var serveFlags struct {
	addr   string
	config string
	rps    float64
	burst  int
}

func init() {
	f := serveCmd.Flags()
	f.StringVar(&serveFlags.addr, "addr", constants.GetListenAddr(), "listen address")
	addConfigFlag(f, &serveFlags.config)
	f.Float64Var(&serveFlags.rps, "rps", 0, "analysis requests allowed per second, 0 for no limit")
	f.IntVar(&serveFlags.burst, "burst", 8, "analysis requests allowed at once above --rps")
	rootCmd.AddCommand(serveCmd)
}

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "serves",
	Long:  `Serves note extraction, onset detection and the catalog over http.`,
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, err := detectorConfig(serveFlags.config, 0)
		if err != nil {
			return err
		}
		if detector, err = onset.NewDetector(cfg, log.StandardLogger()); err != nil {
			return err
		}
		if err := LoadServeFiles(); err != nil {
			log.WithError(err).Warn("no catalog loaded, /catalog will be unavailable")
		}
		serveCache = db.FromEnv()

		log.WithField("addr", serveFlags.addr).Info("listening")
		var limiter *rate.Limiter
		if serveFlags.rps > 0 {
			limiter = rate.NewLimiter(rate.Limit(serveFlags.rps), serveFlags.burst)
		}
		return http.ListenAndServe(serveFlags.addr, newRouter(limiter))
	},
}

// LoadServeFiles reads the catalog in INDEX_PATH into memory.
func LoadServeFiles() error {
	r, err := catalog.Open(constants.GetIndexDir())
	if err != nil {
		return err
	}
	entries, err := r.Entries()
	if err != nil {
		return err
	}
	items := make([]model.CatalogListItem, 0, len(entries))
	for _, e := range entries {
		items = append(items, model.CatalogListItem{
			FileNum:   e.FileNum,
			Path:      e.Path,
			Kind:      e.Kind,
			NoteCount: e.NoteCount,
			HasOnset:  e.Onset != nil && e.Onset.HasOnset,
			Error:     e.Error,
		})
	}
	servedCatalog, catalogItems = r, items
	log.WithField("files", len(items)).Info("loaded catalog")
	return nil
}

// serveDetector falls back to the default config when serve did not set one
// up, e.g. when the handlers are mounted by tests.
func serveDetector() (*onset.Detector, error) {
	detectorOnce.Do(func() {
		if detector == nil {
			detector, detectorErr = onset.NewDetector(onset.DefaultConfig(), log.StandardLogger())
		}
	})
	return detector, detectorErr
}

func NewRouter() http.Handler {
	return newRouter(nil)
}

// newRouter throttles the analysis endpoints with limiter when it is set.
func newRouter(limiter *rate.Limiter) http.Handler {
	router := mux.NewRouter().StrictSlash(true)
	router.Use(requestID)
	throttle := func(h http.HandlerFunc) http.Handler { return h }
	if limiter != nil {
		throttle = func(h http.HandlerFunc) http.Handler { return limit(limiter)(h) }
	}
	router.Handle("/notes", throttle(HandleNotes)).Methods("POST")
	router.Handle("/onset", throttle(HandleOnset)).Methods("POST")
	router.HandleFunc("/catalog", HandleCatalog).Methods("GET")
	router.HandleFunc("/catalog/{id:[0-9]+}", HandleCatalogEntry).Methods("GET")
	router.HandleFunc("/catalog/lookup", HandleCatalogLookup).Methods("GET").Queries("path", "{path}")

	c := cors.New(cors.Options{
		AllowedOrigins: []string{"*"},
		AllowedMethods: []string{http.MethodGet, http.MethodPost},
		AllowedHeaders: []string{"Content-Type"},
	})
	return c.Handler(router)
}

func requestID(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		id := uuid.New().String()
		w.Header().Set("X-Request-Id", id)
		log.WithFields(log.Fields{"request": id, "method": r.Method, "path": r.URL.Path}).Debug("request")
		next.ServeHTTP(w, r)
	})
}

func limit(l *rate.Limiter) mux.MiddlewareFunc {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if !l.Allow() {
				writeError(w, http.StatusTooManyRequests, "too many requests")
				return
			}
			next.ServeHTTP(w, r)
		})
	}
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		log.WithError(err).Warn("could not write response")
	}
}

func writeError(w http.ResponseWriter, status int, msg string) {
	writeJSON(w, status, model.ErrorResponse{Error: msg})
}

func readBody(w http.ResponseWriter, r *http.Request) ([]byte, bool) {
	data, err := io.ReadAll(http.MaxBytesReader(w, r.Body, maxBodyBytes))
	if err != nil {
		writeError(w, http.StatusBadRequest, "could not read request body")
		return nil, false
	}
	return data, true
}

func queryBool(r *http.Request, name string) bool {
	v, _ := strconv.ParseBool(r.URL.Query().Get(name))
	return v
}

// HandleNotes takes a midi file as the request body. ?melody=true keeps the
// busiest track, ?keep_drums=true keeps percussion.
func HandleNotes(w http.ResponseWriter, r *http.Request) {
	data, ok := readBody(w, r)
	if !ok {
		return
	}
	opts := midi.DefaultOptions()
	opts.MelodyOnly = queryBool(r, "melody")
	opts.FilterPercussion = !queryBool(r, "keep_drums")

	// options change the result so they are part of the key
	key := db.ContentKey(model.KindMidi, data) + "#" + strconv.FormatBool(opts.MelodyOnly) + strconv.FormatBool(opts.FilterPercussion)
	if cached, hit, err := serveCache.GetAnalysis(key); err != nil {
		log.WithError(err).Warn("analysis cache lookup failed")
	} else if hit {
		notes := cached.Notes
		if notes == nil {
			notes = []model.MusicalNote{}
		}
		writeJSON(w, http.StatusOK, model.NotesResponse{Count: len(notes), Notes: notes, Cached: true})
		return
	}

	notes := midi.Parse(data, opts)
	if err := serveCache.PutAnalysis(model.Analysis{Key: key, Kind: model.KindMidi, Notes: notes}); err != nil {
		log.WithError(err).Warn("could not cache notes")
	}
	writeJSON(w, http.StatusOK, model.NotesResponse{Count: len(notes), Notes: notes})
}

// HandleOnset takes mono little-endian float32 samples as the request body
// and the sample rate as ?rate=N.
func HandleOnset(w http.ResponseWriter, r *http.Request) {
	rate, err := strconv.Atoi(r.URL.Query().Get("rate"))
	if err != nil {
		writeError(w, http.StatusBadRequest, "rate query parameter must be an integer")
		return
	}
	data, ok := readBody(w, r)
	if !ok {
		return
	}
	samples, err := pcm.ParseF32LE(data)
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	d, err := serveDetector()
	if err != nil {
		writeError(w, http.StatusInternalServerError, err.Error())
		return
	}

	key := onsetCacheKey(data, rate, d.Config())
	if cached, hit, err := serveCache.GetAnalysis(key); err != nil {
		log.WithError(err).Warn("analysis cache lookup failed")
	} else if hit && cached.Onset != nil {
		writeJSON(w, http.StatusOK, model.OnsetResponse{OnsetResult: *cached.Onset, Samples: len(samples), SampleRate: rate, Cached: true})
		return
	}

	res := d.Detect(samples, rate)
	if err := serveCache.PutAnalysis(model.Analysis{Key: key, Kind: model.KindAudio, Onset: &res}); err != nil {
		log.WithError(err).Warn("could not cache onset")
	}
	writeJSON(w, http.StatusOK, model.OnsetResponse{OnsetResult: res, Samples: len(samples), SampleRate: rate})
}

func onsetCacheKey(data []byte, sampleRate int, cfg onset.Config) string {
	return db.ContentKey(model.KindAudio, data) + "@" + strconv.Itoa(sampleRate) + "@" + cfg.Fingerprint()
}

// HandleCatalog lists catalog entries, paged with ?start= and ?limit=.
func HandleCatalog(w http.ResponseWriter, r *http.Request) {
	if servedCatalog == nil {
		writeError(w, http.StatusServiceUnavailable, "no catalog loaded")
		return
	}
	start, _ := strconv.Atoi(r.URL.Query().Get("start"))
	limit, err := strconv.Atoi(r.URL.Query().Get("limit"))
	if err != nil || limit <= 0 {
		limit = defaultLimit
	}
	if start < 0 || start > len(catalogItems) {
		start = len(catalogItems)
	}
	if rest := len(catalogItems) - start; limit > rest {
		limit = rest
	}
	end := start + limit
	writeJSON(w, http.StatusOK, model.CatalogResponse{
		Start: start,
		Total: len(catalogItems),
		Items: catalogItems[start:end],
	})
}

func HandleCatalogEntry(w http.ResponseWriter, r *http.Request) {
	if servedCatalog == nil {
		writeError(w, http.StatusServiceUnavailable, "no catalog loaded")
		return
	}
	id, err := strconv.ParseUint(mux.Vars(r)["id"], 10, 32)
	if err != nil {
		writeError(w, http.StatusBadRequest, "bad file id")
		return
	}
	writeEntry(w, model.FileNum(id))
}

// HandleCatalogLookup finds an entry by its path relative to MEDIA_PATH.
func HandleCatalogLookup(w http.ResponseWriter, r *http.Request) {
	if servedCatalog == nil {
		writeError(w, http.StatusServiceUnavailable, "no catalog loaded")
		return
	}
	num, ok := file.FindFileNum(servedCatalog.Catalog.Files, mux.Vars(r)["path"])
	if !ok {
		writeError(w, http.StatusNotFound, "no such file")
		return
	}
	writeEntry(w, num)
}

func writeEntry(w http.ResponseWriter, num model.FileNum) {
	e, err := servedCatalog.Entry(num)
	if errors.Is(err, catalog.ErrNotFound) {
		writeError(w, http.StatusNotFound, "no such file")
		return
	}
	if err != nil {
		log.WithError(err).Error("could not read catalog entry")
		writeError(w, http.StatusInternalServerError, "could not read catalog entry")
		return
	}
	writeJSON(w, http.StatusOK, e)
}
