package storage

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"time"

	"cloud.google.com/go/firestore"
	"github.com/levenlabs/go-lflag"
	"github.com/reservetender/reservetender/pkg/log"
	"github.com/reservetender/reservetender/pkg/types"
	"google.golang.org/api/iterator"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"
)

const (
	settingsCollection = "settings"
	outcomesCollection = "outcomes"
)

// FirestoreDatabase implements Database on Google Cloud Firestore. Settings
// live in one collection, a document per key with a typed "value" field;
// reconciliation outcomes live in their own collection keyed by timestamp.
type FirestoreDatabase struct {
	client    *firestore.Client
	projectID string
	database  string
}

// configuredFirestore sets up the Firestore provider.
// It registers flags for configuration.
func configuredFirestore() *FirestoreDatabase {
	projectID := lflag.String("firestore-project-id", "", "Google Cloud Project ID for Firestore")
	database := lflag.String("firestore-database", "", "Google Cloud Firestore Database")
	emulator := lflag.String("firestore-emulator", "", "Use Firestore emulator")

	f := &FirestoreDatabase{}

	lflag.Do(func() {
		f.projectID = *projectID
		f.database = *database

		// set this because that's how firestore client expects it
		if *emulator != "" {
			os.Setenv("FIRESTORE_EMULATOR_HOST", *emulator)
		}
	})

	return f
}

// Validate checks if the provider is properly configured.
func (f *FirestoreDatabase) Validate() error {
	// Project ID may be empty if it can be inferred from the environment.
	return nil
}

// Init initializes the Firestore client.
// This must be called before using the provider methods.
func (f *FirestoreDatabase) Init(ctx context.Context) error {
	projectID := f.projectID
	if projectID == "" {
		projectID = firestore.DetectProjectID
	}
	database := f.database
	if database == "" {
		database = firestore.DefaultDatabaseID
	}
	client, err := firestore.NewClientWithDatabase(ctx, projectID, database)
	if err != nil {
		return fmt.Errorf("failed to create firestore client (project=%s, database=%s): %w", projectID, database, err)
	}
	f.client = client
	return nil
}

// Close closes the Firestore client connection.
func (f *FirestoreDatabase) Close() error {
	if f.client != nil {
		return f.client.Close()
	}
	return nil
}

func (f *FirestoreDatabase) settingDoc(key string) *firestore.DocumentRef {
	return f.client.Collection(settingsCollection).Doc(key)
}

// getValue fetches the "value" field of a setting doc. The bool is false when
// the key has never been written.
func (f *FirestoreDatabase) getValue(ctx context.Context, key string) (interface{}, bool, error) {
	doc, err := f.settingDoc(key).Get(ctx)
	if err != nil {
		if status.Code(err) == codes.NotFound {
			return nil, false, nil
		}
		return nil, false, fmt.Errorf("failed to fetch setting %q: %w", key, err)
	}
	val, err := doc.DataAt("value")
	if err != nil {
		return nil, false, &types.ConfigError{Key: key, Err: fmt.Errorf("document missing value field: %w", err)}
	}
	return val, true, nil
}

func (f *FirestoreDatabase) getString(ctx context.Context, key string) (string, error) {
	val, ok, err := f.getValue(ctx, key)
	if err != nil || !ok {
		return "", err
	}
	s, isStr := val.(string)
	if !isStr {
		return "", &types.ConfigError{Key: key, Err: fmt.Errorf("expected string, got %T", val)}
	}
	return s, nil
}

func (f *FirestoreDatabase) getInt64(ctx context.Context, key string) (int64, bool, error) {
	val, ok, err := f.getValue(ctx, key)
	if err != nil || !ok {
		return 0, ok, err
	}
	switch v := val.(type) {
	case int64:
		return v, true, nil
	case float64:
		return int64(v), true, nil
	default:
		return 0, false, &types.ConfigError{Key: key, Err: fmt.Errorf("expected integer, got %T", val)}
	}
}

// GetCredential reads the token triple. A missing key simply leaves that
// field zero.
func (f *FirestoreDatabase) GetCredential(ctx context.Context) (types.Credential, error) {
	var cred types.Credential

	refresh, err := f.getString(ctx, KeyRefreshToken)
	if err != nil {
		return types.Credential{}, err
	}
	cred.RefreshToken = refresh

	access, err := f.getString(ctx, KeyAuthToken)
	if err != nil {
		return types.Credential{}, err
	}
	cred.AccessToken = access

	expires, ok, err := f.getInt64(ctx, KeyTokenExpires)
	if err != nil {
		return types.Credential{}, err
	}
	if ok {
		cred.ExpiresAt = time.Unix(expires, 0)
	}

	return cred, nil
}

// SetCredential writes the three credential keys inside one transaction so a
// reader never observes a refreshed refresh token paired with a stale access
// token.
func (f *FirestoreDatabase) SetCredential(ctx context.Context, cred types.Credential) error {
	log.Ctx(ctx).DebugContext(ctx, "persisting credential", slog.Time("expiresAt", cred.ExpiresAt))
	err := f.client.RunTransaction(ctx, func(ctx context.Context, tx *firestore.Transaction) error {
		if err := tx.Set(f.settingDoc(KeyRefreshToken), map[string]interface{}{"value": cred.RefreshToken}); err != nil {
			return err
		}
		if err := tx.Set(f.settingDoc(KeyAuthToken), map[string]interface{}{"value": cred.AccessToken}); err != nil {
			return err
		}
		return tx.Set(f.settingDoc(KeyTokenExpires), map[string]interface{}{"value": cred.ExpiresAt.Unix()})
	})
	if err != nil {
		return fmt.Errorf("failed to persist credential: %w", err)
	}
	return nil
}

// GetHolidays returns the stored holiday list, empty if unset.
func (f *FirestoreDatabase) GetHolidays(ctx context.Context) ([]string, error) {
	val, ok, err := f.getValue(ctx, KeyHolidays)
	if err != nil || !ok {
		return nil, err
	}
	items, isSlice := val.([]interface{})
	if !isSlice {
		return nil, &types.ConfigError{Key: KeyHolidays, Err: fmt.Errorf("expected list, got %T", val)}
	}
	holidays := make([]string, 0, len(items))
	for _, item := range items {
		s, isStr := item.(string)
		if !isStr {
			return nil, &types.ConfigError{Key: KeyHolidays, Err: fmt.Errorf("expected list of strings, got element %T", item)}
		}
		holidays = append(holidays, s)
	}
	return holidays, nil
}

func (f *FirestoreDatabase) SetHolidays(ctx context.Context, holidays []string) error {
	log.Ctx(ctx).DebugContext(ctx, "persisting holidays", slog.Int("count", len(holidays)))
	_, err := f.settingDoc(KeyHolidays).Set(ctx, map[string]interface{}{"value": holidays})
	if err != nil {
		return fmt.Errorf("failed to persist holidays: %w", err)
	}
	return nil
}

// GetPeakReserve returns the configured peak reserve and whether it was set.
func (f *FirestoreDatabase) GetPeakReserve(ctx context.Context) (int, bool, error) {
	v, ok, err := f.getInt64(ctx, KeyPeakReserve)
	return int(v), ok, err
}

func (f *FirestoreDatabase) SetPeakReserve(ctx context.Context, percent int) error {
	log.Ctx(ctx).DebugContext(ctx, "persisting peak reserve", slog.Int("percent", percent))
	_, err := f.settingDoc(KeyPeakReserve).Set(ctx, map[string]interface{}{"value": percent})
	if err != nil {
		return fmt.Errorf("failed to persist peak reserve: %w", err)
	}
	return nil
}

type outcomeDoc struct {
	Timestamp   time.Time `firestore:"timestamp"`
	Kind        string    `firestore:"kind"`
	FromReserve int       `firestore:"fromReserve"`
	ToReserve   int       `firestore:"toReserve"`
	Reason      string    `firestore:"reason"`
}

// InsertOutcome records a reconciliation result keyed by its timestamp.
func (f *FirestoreDatabase) InsertOutcome(ctx context.Context, outcome types.Outcome) error {
	docID := outcome.Timestamp.UTC().Format(time.RFC3339)
	_, err := f.client.Collection(outcomesCollection).Doc(docID).Set(ctx, outcomeDoc{
		Timestamp:   outcome.Timestamp,
		Kind:        string(outcome.Kind),
		FromReserve: outcome.FromReserve,
		ToReserve:   outcome.ToReserve,
		Reason:      outcome.Reason,
	})
	if err != nil {
		return fmt.Errorf("failed to insert outcome: %w", err)
	}
	return nil
}

// GetOutcomeHistory returns recorded outcomes in [start, end), oldest first.
func (f *FirestoreDatabase) GetOutcomeHistory(ctx context.Context, start, end time.Time) ([]types.Outcome, error) {
	iter := f.client.Collection(outcomesCollection).
		Where("timestamp", ">=", start).
		Where("timestamp", "<", end).
		OrderBy("timestamp", firestore.Asc).
		Documents(ctx)
	defer iter.Stop()

	var outcomes []types.Outcome
	for {
		doc, err := iter.Next()
		if err == iterator.Done {
			break
		}
		if err != nil {
			return nil, fmt.Errorf("failed to iterate outcomes: %w", err)
		}
		var od outcomeDoc
		if err := doc.DataTo(&od); err != nil {
			log.Ctx(ctx).WarnContext(ctx, "skipping malformed outcome doc", slog.String("id", doc.Ref.ID), slog.Any("error", err))
			continue
		}
		outcomes = append(outcomes, types.Outcome{
			Timestamp:   od.Timestamp,
			Kind:        types.OutcomeKind(od.Kind),
			FromReserve: od.FromReserve,
			ToReserve:   od.ToReserve,
			Reason:      od.Reason,
		})
	}
	return outcomes, nil
}
