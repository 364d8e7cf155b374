package admin

import (
	"context"
	"encoding/json"
	"fmt"
	"log"
	"time"

	"github.com/frontlinehq/frontline/internal/config"
	"github.com/frontlinehq/frontline/internal/domain"
	"github.com/frontlinehq/frontline/internal/repository"
	"github.com/frontlinehq/frontline/internal/service"
	"github.com/frontlinehq/frontline/internal/storage"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/spf13/cobra"
)

// knowledgeExportFile is the JSON document exchanged through object storage
type knowledgeExportFile struct {
	ExportedAt string                 `json:"exported_at"`
	Entries    []knowledgeExportEntry `json:"entries"`
}

type knowledgeExportEntry struct {
	Question string `json:"question"`
	Answer   string `json:"answer"`
	Source   string `json:"source,omitempty"`
}

// KnowledgeCmd returns the knowledge command group
func KnowledgeCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "knowledge",
		Short: "Manage the knowledge base",
	}

	cmd.AddCommand(knowledgeImportCmd())
	cmd.AddCommand(knowledgeExportCmd())

	return cmd
}

func knowledgeImportCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "import <object-key>",
		Short: "Import knowledge entries from object storage",
		Long:  "Fetch a JSON export from the configured S3 bucket and upsert its entries into the knowledge base",
		Args:  cobra.ExactArgs(1),
		RunE:  runKnowledgeImport,
	}
	return cmd
}

func knowledgeExportCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "export <object-key>",
		Short: "Export the knowledge base to object storage",
		Args:  cobra.ExactArgs(1),
		RunE:  runKnowledgeExport,
	}
	return cmd
}

func runKnowledgeImport(cmd *cobra.Command, args []string) error {
	ctx := context.Background()

	svc, s3Client, cleanup, err := knowledgeSetup(ctx)
	if err != nil {
		return err
	}
	defer cleanup()

	data, err := s3Client.GetObject(ctx, args[0])
	if err != nil {
		return fmt.Errorf("failed to fetch export file: %w", err)
	}

	var file knowledgeExportFile
	if err := json.Unmarshal(data, &file); err != nil {
		return fmt.Errorf("failed to parse export file: %w", err)
	}

	imported := 0
	for _, entry := range file.Entries {
		_, err := svc.UpsertByQuestion(ctx, service.CreateKnowledgeInput{
			Question: entry.Question,
			Answer:   entry.Answer,
			Source:   domain.KnowledgeSourceImport,
		})
		if err != nil {
			log.Printf("skipping entry %q: %v", entry.Question, err)
			continue
		}
		imported++
	}

	log.Printf("imported %d/%d knowledge entries from %s", imported, len(file.Entries), args[0])
	return nil
}

func runKnowledgeExport(cmd *cobra.Command, args []string) error {
	ctx := context.Background()

	svc, s3Client, cleanup, err := knowledgeSetup(ctx)
	if err != nil {
		return err
	}
	defer cleanup()

	entries, err := svc.ListAll(ctx)
	if err != nil {
		return fmt.Errorf("failed to list knowledge entries: %w", err)
	}

	file := knowledgeExportFile{
		ExportedAt: time.Now().UTC().Format(time.RFC3339),
		Entries:    make([]knowledgeExportEntry, len(entries)),
	}
	for i, e := range entries {
		file.Entries[i] = knowledgeExportEntry{
			Question: e.Question,
			Answer:   e.Answer,
			Source:   string(e.Source),
		}
	}

	data, err := json.MarshalIndent(file, "", "  ")
	if err != nil {
		return fmt.Errorf("failed to marshal export file: %w", err)
	}

	if err := s3Client.PutObject(ctx, args[0], data, "application/json"); err != nil {
		return fmt.Errorf("failed to upload export file: %w", err)
	}

	log.Printf("exported %d knowledge entries to %s", len(entries), args[0])
	return nil
}

func knowledgeSetup(ctx context.Context) (*service.KnowledgeService, *storage.S3Client, func(), error) {
	cfg, err := config.Load()
	if err != nil {
		return nil, nil, nil, fmt.Errorf("failed to load config: %w", err)
	}

	if !cfg.HasS3() {
		return nil, nil, nil, fmt.Errorf("S3 is not configured: set FRONTLINE_S3_ENDPOINT, FRONTLINE_S3_ACCESS_KEY_ID and FRONTLINE_S3_SECRET_ACCESS_KEY")
	}

	pool, err := pgxpool.New(ctx, cfg.DatabaseURL)
	if err != nil {
		return nil, nil, nil, fmt.Errorf("failed to connect to database: %w", err)
	}

	s3Client, err := storage.NewS3Client(ctx, storage.S3ClientConfig{
		Endpoint:        cfg.S3Endpoint,
		Region:          cfg.S3Region,
		AccessKeyID:     cfg.S3AccessKey,
		SecretAccessKey: cfg.S3SecretKey,
		Bucket:          cfg.S3Bucket,
		UsePathStyle:    true,
	})
	if err != nil {
		pool.Close()
		return nil, nil, nil, fmt.Errorf("failed to create S3 client: %w", err)
	}

	if err := s3Client.EnsureBucket(ctx); err != nil {
		pool.Close()
		return nil, nil, nil, fmt.Errorf("failed to ensure S3 bucket: %w", err)
	}

	svc := service.NewKnowledgeService(repository.NewKnowledgeRepository(pool), nil)
	return svc, s3Client, pool.Close, nil
}
