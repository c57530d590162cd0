package main

import (
	"context"
	"log"
	"net/http"

	blobmemory "github.com/varsivault/vault-core/internal/adapters/blob/memory"
	blobs3 "github.com/varsivault/vault-core/internal/adapters/blob/s3"
	httpadapter "github.com/varsivault/vault-core/internal/adapters/http"
	"github.com/varsivault/vault-core/internal/adapters/identity"
	firestorestore "github.com/varsivault/vault-core/internal/adapters/storage/firestore"
	memstore "github.com/varsivault/vault-core/internal/adapters/storage/memory"
	filesapp "github.com/varsivault/vault-core/internal/app/files"
	"github.com/varsivault/vault-core/internal/app/replication"
	"github.com/varsivault/vault-core/internal/app/retention"
	"github.com/varsivault/vault-core/internal/config"
	"github.com/varsivault/vault-core/internal/domain"
)

func main() {
	ctx := context.Background()
	cfg := config.Load()

	// Record store: Firestore or Memory. One store implements both
	// partitions of the scheme.
	var (
		ownerStore  domain.OwnerStore
		mirrorStore domain.MirrorStore
	)
	switch cfg.StorageBackend {
	case "firestore":
		log.Printf("[STORE] Using Firestore storage (project=%s)", cfg.GCPProjectID)
		fsStore, err := firestorestore.NewStore(ctx, cfg.GCPProjectID)
		if err != nil {
			log.Fatalf("error initializing Firestore store: %v", err)
		}
		ownerStore = fsStore
		mirrorStore = fsStore
	default:
		log.Println("[STORE] Using in-memory storage")
		m := memstore.NewStore()
		ownerStore = m
		mirrorStore = m
	}

	// Blob store: S3 or Memory.
	var blobStore domain.BlobStore
	switch cfg.BlobBackend {
	case "s3":
		log.Printf("[BLOB] Using S3 blob storage (bucket=%s)", cfg.S3Bucket)
		s3Store, err := blobs3.NewStore(ctx, blobs3.Options{
			Region:       cfg.S3Region,
			AccessKey:    cfg.S3AccessKey,
			SecretKey:    cfg.S3SecretKey,
			Bucket:       cfg.S3Bucket,
			BaseEndpoint: cfg.S3Endpoint,
		})
		if err != nil {
			log.Fatalf("error initializing S3 blob store: %v", err)
		}
		blobStore = s3Store
	default:
		log.Println("[BLOB] Using in-memory blob storage")
		blobStore = blobmemory.NewStore()
	}

	fileSvc := filesapp.NewService(ownerStore, blobStore, cfg.StoreOpTimeout)
	sessionSvc := replication.NewService(ownerStore, mirrorStore, fileSvc, replication.Options{
		OpTimeout:    cfg.StoreOpTimeout,
		RetryBackoff: cfg.RetryBackoff,
	})

	if cfg.SweepEnabled {
		sweeper := retention.NewSweeper(mirrorStore, sessionSvc, cfg.SweepThreshold, cfg.SweepBatchSize)
		retention.StartJob(ctx, sweeper, cfg.SweepInterval, cfg.SweepTimeout)
	}

	resolver := identity.NewResolver([]byte(cfg.JWTSecret))
	handler := httpadapter.NewServer(sessionSvc, fileSvc, resolver)

	addr := ":" + cfg.Port
	log.Println("VarsiVault session core listening on", addr)
	if err := http.ListenAndServe(addr, handler); err != nil {
		log.Fatal(err)
	}
}
