package main

import (
	"context"
	"encoding/hex"
	"errors"
	"log"
	"net/http"
	"os"
	"os/user"
	"path"
	"sync"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
	"github.com/golang-jwt/jwt/v5"
	"github.com/jessevdk/go-flags"
	"github.com/ulule/limiter/v3"
	limitermemory "github.com/ulule/limiter/v3/drivers/store/memory"
	"golang.org/x/crypto/bcrypt"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
)

const (
	dataDir        = ".pucksight"
	dbName         = "pucksight.db"
	jwtKeyHex      = "6f1c0d3e8a2b97d4c5e6f708192a3b4c5d6e7f8091a2b3c4d5e6f70819aabbcc"
	userContextKey = contextKey("user")
)

type contextKey string

type Server struct {
	db      *gorm.DB
	r       chi.Router
	dataDir string
	devMode bool
	source  DataSource
	season  string

	// Guards prediction_log.json; handlers run concurrently.
	logMu sync.Mutex

	loginRateLimiter   *limiter.Limiter
	predictRateLimiter *limiter.Limiter
}

type Options struct {
	Listen          string        `short:"l" long:"listen" description:"Address to listen on" default:":8080"`
	DataDir         string        `short:"d" long:"datadir" description:"Directory to store data in. Defaults to ~/.pucksight"`
	Source          string        `short:"s" long:"source" description:"Data source to fetch from" choice:"nhlweb" choice:"rapidapi" choice:"scrape" choice:"synthetic" default:"nhlweb"`
	Season          string        `long:"season" description:"Season to fetch and train on, e.g. 20232024. Defaults to the season in progress."`
	BaseURL         string        `long:"baseurl" description:"Override the upstream API base URL"`
	RapidAPIKey     string        `long:"rapidapikey" description:"API key for the rapidapi source" env:"RAPIDAPI_KEY"`
	ScheduleURL     string        `long:"scheduleurl" description:"Schedule page URL for the scrape source"`
	StandingsURL    string        `long:"standingsurl" description:"Standings page URL for the scrape source"`
	RefreshInterval time.Duration `long:"refreshinterval" description:"Interval between background fetch+retrain runs. Zero disables the ticker."`
	CORSOrigins     []string      `long:"corsorigin" description:"Allowed CORS origins for the dashboard frontend" default:"*"`
	DevMode         bool          `long:"dev" description:"Run in dev mode (insecure cookies)"`
}

var jwtKey []byte

func init() {
	var err error
	jwtKey, err = hex.DecodeString(jwtKeyHex)
	if err != nil {
		log.Fatal("error parsing jwt key")
	}
}

func main() {
	var opts Options
	if _, err := flags.Parse(&opts); err != nil {
		os.Exit(1)
	}

	dataDirPath, err := resolveDataDir(opts.DataDir)
	if err != nil {
		log.Fatalf("Data dir initialization errored: %v", err)
	}

	db, err := initDatabase(dataDirPath)
	if err != nil {
		log.Fatalf("Database initialization errored: %v", err)
	}

	source, err := buildSource(&opts)
	if err != nil {
		log.Fatalf("Data source initialization errored: %v", err)
	}

	season := opts.Season
	if season == "" {
		season = currentSeason(time.Now())
	}
	if !validateSeason(season) {
		log.Fatalf("Malformed season: %s", season)
	}

	r := chi.NewRouter()

	// Middleware
	r.Use(middleware.Logger)
	r.Use(cors.Handler(cors.Options{
		AllowedOrigins:   opts.CORSOrigins,
		AllowedMethods:   []string{"GET", "POST", "PUT", "DELETE", "OPTIONS"},
		AllowedHeaders:   []string{"Accept", "Authorization", "Content-Type"},
		AllowCredentials: true,
	}))

	s := &Server{
		db:      db,
		r:       r,
		dataDir: dataDirPath,
		devMode: opts.DevMode,
		source:  source,
		season:  season,
		loginRateLimiter: limiter.New(limitermemory.NewStore(), limiter.Rate{
			Period: 10 * time.Minute,
			Limit:  10,
		}),
		predictRateLimiter: limiter.New(limitermemory.NewStore(), limiter.Rate{
			Period: time.Minute,
			Limit:  30,
		}),
	}

	s.routes()

	if opts.RefreshInterval > 0 {
		go s.refreshLoop(context.Background(), opts.RefreshInterval)
	}

	log.Printf("Serving %s predictions on %s (source: %s)", season, opts.Listen, source.Name())
	http.ListenAndServe(opts.Listen, r)
}

func (s *Server) routes() {
	s.r.Post("/login", s.POSTLoginHandler)
	s.r.Post("/logout", s.POSTLogoutHandler)
	s.r.Post("/auth/me", authMiddleware(s.POSTAuthMe))
	s.r.Post("/changepw", authMiddleware(s.POSTChangePasswordHandler))

	s.r.Get("/teams", s.GETTeams)
	s.r.Get("/schedule", s.GETSchedule)
	s.r.Get("/standings", s.GETStandings)
	s.r.Get("/model", s.GETModel)
	s.r.Post("/predict", s.POSTPredict)
	s.r.Get("/predictions", s.GETPredictions)
	s.r.Put("/predictions/{predictionID}/outcome", authMiddleware(s.PUTPredictionOutcome))
	s.r.Post("/refresh", authMiddleware(s.POSTRefresh))
}

// refreshLoop re-fetches and retrains on a fixed interval. Failures
// are logged and the previous model keeps serving.
func (s *Server) refreshLoop(ctx context.Context, interval time.Duration) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			if err := s.refreshData(ctx, s.season); err != nil {
				log.Printf("Background refresh failed: %v", err)
				continue
			}
			if _, err := s.trainModel(s.season); err != nil {
				log.Printf("Background training failed: %v", err)
			}
		}
	}
}

func buildSource(opts *Options) (DataSource, error) {
	switch opts.Source {
	case "nhlweb":
		return newNHLStatsSource(opts.BaseURL), nil
	case "rapidapi":
		if opts.RapidAPIKey == "" {
			return nil, errors.New("rapidapi source requires --rapidapikey")
		}
		return newRapidAPISource(opts.BaseURL, opts.RapidAPIKey), nil
	case "scrape":
		if opts.ScheduleURL == "" || opts.StandingsURL == "" {
			return nil, errors.New("scrape source requires --scheduleurl and --standingsurl")
		}
		return newScrapeSource(opts.ScheduleURL, opts.StandingsURL), nil
	case "synthetic":
		return newSyntheticSource(time.Now().UnixNano()), nil
	default:
		return nil, errors.New("unknown data source: " + opts.Source)
	}
}

func resolveDataDir(override string) (string, error) {
	if override != "" {
		return override, os.MkdirAll(override, os.ModePerm)
	}

	// Get the OS specific home directory via the Go standard lib.
	var homeDir string
	usr, err := user.Current()
	if err == nil {
		homeDir = usr.HomeDir
	}

	// Fall back to standard HOME environment variable that works
	// for most POSIX OSes if the directory from the Go standard
	// lib failed.
	if err != nil || homeDir == "" {
		homeDir = os.Getenv("HOME")
	}

	dataDirPath := path.Join(homeDir, dataDir)
	return dataDirPath, os.MkdirAll(dataDirPath, os.ModePerm)
}

// Check to see if the database exists. If not create it and initialize
// it with a default admin password to be changed later.
func initDatabase(dataDirPath string) (*gorm.DB, error) {
	db, err := gorm.Open(sqlite.Open(path.Join(dataDirPath, dbName)), &gorm.Config{})
	if err != nil {
		return nil, err
	}

	if err := applyMigrations(db); err != nil {
		return nil, err
	}

	var creds DBCredentials
	result := db.First(&creds)
	if result.Error != nil {
		if errors.Is(result.Error, gorm.ErrRecordNotFound) {
			hash, err := bcrypt.GenerateFromPassword([]byte("letmein"), bcrypt.DefaultCost)
			if err != nil {
				return nil, err
			}
			result := db.Create(&DBCredentials{Username: "admin", PasswordHash: string(hash)})
			if result.Error != nil {
				return nil, err
			}
		} else {
			return nil, result.Error
		}
	}

	return db, nil
}

func applyMigrations(db *gorm.DB) error {
	return db.AutoMigrate(
		&DBCredentials{},
		&Team{},
		&Game{},
		&TeamStats{},
		&ModelSnapshot{},
		&Prediction{},
	)
}

// Validate the JWT token. It can either been in a cookie or a header.
func authMiddleware(next http.HandlerFunc) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var tokenStr string

		// First try Authorization header
		authHeader := r.Header.Get("Authorization")
		if len(authHeader) >= 7 && authHeader[:7] == "Bearer " {
			tokenStr = authHeader[7:]
		} else {
			// Fallback to auth_token cookie
			cookie, err := r.Cookie("auth_token")
			if err != nil {
				http.Error(w, "Missing auth token", http.StatusUnauthorized)
				return
			}
			tokenStr = cookie.Value
		}

		claims := &Claims{}
		token, err := jwt.ParseWithClaims(tokenStr, claims, func(t *jwt.Token) (interface{}, error) {
			return jwtKey, nil
		})

		if err != nil || !token.Valid {
			http.Error(w, "Invalid token", http.StatusUnauthorized)
			return
		}

		// Token is valid, proceed
		ctx := context.WithValue(r.Context(), userContextKey, claims)
		next.ServeHTTP(w, r.WithContext(ctx))
	}
}
