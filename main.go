package main

import (
	"context"
	"net/http"
	"os"
	"time"

	"markdraft/config/database"
	"markdraft/config/firestoredb"
	"markdraft/internal/assist"
	"markdraft/internal/document/repository"
	"markdraft/internal/document/service"
	"markdraft/internal/export"
	"markdraft/internal/localstore"
	"markdraft/internal/markdown"
	"markdraft/internal/pdf"
	"markdraft/internal/settings"
	"markdraft/pkg/logger"
	"markdraft/router"
	"markdraft/socket"

	"github.com/joho/godotenv"
	flag "github.com/spf13/pflag"
	_ "go.uber.org/automaxprocs"
)

func main() {
	addr := flag.String("addr", ":8080", "HTTP listen address")
	dataDir := flag.String("data-dir", defaultDataDir(), "directory for the local fallback store")
	exportTimeout := flag.Duration("export-timeout", 2*time.Minute, "PDF generation timeout")
	flag.Parse()

	logger.Init()
	defer logger.Log.Sync()

	if err := godotenv.Load(); err != nil {
		logger.Sugar.Info("No .env file found, using environment variables from OS")
	}

	ctx := context.Background()

	// Local fallback tier: documents, settings and profiles all live in
	// the same file-backed store.
	store, err := localstore.New(*dataDir)
	if err != nil {
		logger.Sugar.Fatalf("Failed to open local store: %v", err)
	}
	local := repository.NewLocalStore(store, "documents_")

	remote := newRemoteStore(ctx)

	docService := service.NewDocumentService(remote, local)

	hub := socket.NewHub(docService)
	docService.AttachRooms(hub)
	go hub.Run()
	go hub.AutoSaveWorker()
	defer hub.Stop()

	renderer := markdown.NewRenderer()
	exporter := pdf.NewExporter(*exportTimeout)
	defer exporter.Close()

	manager := settings.NewManager(store)

	handler := router.Setup(router.Deps{
		Documents: docService,
		Hub:       hub,
		Export:    export.NewHandler(renderer, exporter),
		Assist:    assist.NewHandler(manager),
	})

	logger.Sugar.Infof("markdraft backend listening on %s", *addr)
	if err := http.ListenAndServe(*addr, handler); err != nil {
		logger.Sugar.Fatalf("Server stopped: %v", err)
	}
}

// newRemoteStore picks the remote backend: Firestore when REMOTE_STORE
// says so (matching the hosted deployment), PostgreSQL otherwise.
func newRemoteStore(ctx context.Context) repository.RemoteStore {
	switch os.Getenv("REMOTE_STORE") {
	case "firestore":
		client, err := firestoredb.NewClient(ctx, os.Getenv("FIRESTORE_PROJECT_ID"), os.Getenv("FIRESTORE_CREDENTIALS_FILE"))
		if err != nil {
			logger.Sugar.Fatalf("Failed to create Firestore client: %v", err)
		}
		logger.Sugar.Info("Using Firestore remote store")
		return repository.NewFirestoreStore(client)

	default:
		db, err := database.Connect()
		if err != nil {
			logger.Sugar.Fatalf("Failed to open database connection: %v", err)
		}
		pg := repository.NewPostgresStore(db)
		pingCtx, cancel := context.WithTimeout(ctx, 30*time.Second)
		defer cancel()
		if err := pg.Ping(pingCtx); err != nil {
			// The coordinator falls back to the local store per operation;
			// an unreachable database at boot is degraded, not fatal.
			logger.Sugar.Warnf("Database unreachable at startup, operations will fall back to local store: %v", err)
		} else {
			logger.Sugar.Info("Successfully connected to the database")
		}
		logger.Sugar.Info("Using PostgreSQL remote store")
		return pg
	}
}

func defaultDataDir() string {
	if dir := os.Getenv("DATA_DIR"); dir != "" {
		return dir
	}
	return "./data"
}
