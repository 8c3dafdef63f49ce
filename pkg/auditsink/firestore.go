package auditsink

import (
	"context"
	"fmt"
	"log"
	"os"

	gcpfirestore "cloud.google.com/go/firestore"
	firebase "firebase.google.com/go/v4"
	"google.golang.org/api/option"

	"github.com/liquity/ir-agent/pkg/journal"
)

// FirestoreSink mirrors journal entries into a Firestore collection,
// grounded directly on pkg/firestore/client.go's Client: an app handle
// plus an enabled flag, constructed unconditionally and reduced to a
// no-op when the enabled flag is false. Enabling it without a project
// ID is an error.
type FirestoreSink struct {
	app       *firebase.App
	client    *gcpfirestore.Client
	projectID string
	enabled   bool
	logger    *log.Logger
}

// NewFirestoreSink mirrors pkg/firestore.NewClient: when enabled is
// false it returns a no-op sink without touching any credentials.
func NewFirestoreSink(ctx context.Context, enabled bool, projectID, credFile string) (*FirestoreSink, error) {
	s := &FirestoreSink{enabled: enabled, projectID: projectID, logger: log.New(os.Stderr, "[AuditSink/Firestore] ", log.LstdFlags)}
	if !enabled {
		s.logger.Println("disabled, operating in no-op mode")
		return s, nil
	}
	if projectID == "" {
		return nil, fmt.Errorf("auditsink: firestore project ID required when enabled")
	}

	var opts []option.ClientOption
	if credFile != "" {
		opts = append(opts, option.WithCredentialsFile(credFile))
	}

	app, err := firebase.NewApp(ctx, &firebase.Config{ProjectID: projectID}, opts...)
	if err != nil {
		return nil, fmt.Errorf("auditsink: initializing firebase app: %w", err)
	}
	client, err := app.Firestore(ctx)
	if err != nil {
		return nil, fmt.Errorf("auditsink: creating firestore client: %w", err)
	}

	s.app = app
	s.client = client
	s.logger.Printf("connected to project %s", projectID)
	return s, nil
}

// collectionPath is a single fleet-wide collection holding one document
// per journal entry, keyed by entry ID; entries are not grouped by type
// or by strategy.
const collectionPath = "agentAuditLog"

func (s *FirestoreSink) Write(ctx context.Context, e journal.Entry) error {
	if !s.enabled {
		return nil
	}
	doc := s.client.Collection(collectionPath).Doc(e.ID)
	_, err := doc.Set(ctx, map[string]interface{}{
		"timestamp":     e.Timestamp,
		"strategyId":    e.StrategyID,
		"type":          string(e.Type),
		"note":          e.Note,
		"ok":            e.OK,
		"errKind":       e.ErrKind,
		"rCurr":         e.RCurr,
		"rNew":          e.RNew,
		"debtInFront":   e.DebtFront,
		"targetAmt":     e.TargetAmt,
		"txHash":        e.TxHash,
	})
	if err != nil {
		s.logger.Printf("write failed for entry %s: %v", e.ID, err)
		return fmt.Errorf("auditsink: writing entry: %w", err)
	}
	return nil
}

func (s *FirestoreSink) Close() error {
	if s.client == nil {
		return nil
	}
	return s.client.Close()
}
