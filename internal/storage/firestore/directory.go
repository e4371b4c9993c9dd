package firestore

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"cloud.google.com/go/firestore"
	"google.golang.org/api/iterator"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"

	"github.com/tinywideclouds/go-bulkpush-service/pkg/dispatch"
)

const (
	UsersCollection = "users"

	fieldToken          = "fcmToken"
	fieldTokenCleanedAt = "fcmTokenCleanedAt"
	fieldRoleID         = "roleId"
	fieldIsSuperUser    = "isSuperUser"
)

// DirectoryStore implements dispatch.DirectoryStore on the users collection.
// Each user document is keyed by user id and holds at most one current
// registration token.
type DirectoryStore struct {
	client *firestore.Client
	users  *firestore.CollectionRef
}

func NewDirectoryStore(client *firestore.Client) *DirectoryStore {
	return &DirectoryStore{client: client, users: client.Collection(UsersCollection)}
}

func (s *DirectoryStore) GetUser(ctx context.Context, userID string) (*dispatch.UserRecord, error) {
	if !validDocID(userID) {
		return nil, nil
	}
	snap, err := s.users.Doc(userID).Get(ctx)
	if err != nil {
		if status.Code(err) == codes.NotFound {
			return nil, nil
		}
		return nil, fmt.Errorf("failed to get user %s: %w", userID, err)
	}
	rec := decodeUser(snap)
	return &rec, nil
}

// LookupByIDs fetches the documents of one chunk in a single batched read.
// Ids that cannot name a document are treated as missing users.
func (s *DirectoryStore) LookupByIDs(ctx context.Context, userIDs []string) ([]dispatch.UserRecord, error) {
	refs := make([]*firestore.DocumentRef, 0, len(userIDs))
	for _, id := range userIDs {
		if validDocID(id) {
			refs = append(refs, s.users.Doc(id))
		}
	}
	if len(refs) == 0 {
		return []dispatch.UserRecord{}, nil
	}

	snaps, err := s.client.GetAll(ctx, refs)
	if err != nil {
		return nil, fmt.Errorf("failed to batch get %d users: %w", len(refs), err)
	}

	records := make([]dispatch.UserRecord, 0, len(snaps))
	for _, snap := range snaps {
		if !snap.Exists() {
			continue
		}
		records = append(records, decodeUser(snap))
	}
	return records, nil
}

func (s *DirectoryStore) LookupByToken(ctx context.Context, token string, limit int) ([]dispatch.UserRecord, error) {
	iter := s.users.Where(fieldToken, "==", token).Limit(limit).Documents(ctx)
	defer iter.Stop()

	var records []dispatch.UserRecord
	for {
		snap, err := iter.Next()
		if errors.Is(err, iterator.Done) {
			break
		}
		if err != nil {
			return nil, fmt.Errorf("token holder query failed: %w", err)
		}
		records = append(records, decodeUser(snap))
	}
	return records, nil
}

// ClearToken deletes the token field and stamps when it was cleaned. A user
// that no longer exists has nothing to clear.
func (s *DirectoryStore) ClearToken(ctx context.Context, userID string) error {
	_, err := s.users.Doc(userID).Update(ctx, []firestore.Update{
		{Path: fieldToken, Value: firestore.Delete},
		{Path: fieldTokenCleanedAt, Value: firestore.ServerTimestamp},
	})
	if err != nil && status.Code(err) != codes.NotFound {
		return fmt.Errorf("failed to clear token of user %s: %w", userID, err)
	}
	return nil
}

// decodeUser reads the fields the engine needs. User documents are shared
// with the rest of the app, so anything of the wrong type is ignored
// rather than failing the decode.
func decodeUser(snap *firestore.DocumentSnapshot) dispatch.UserRecord {
	data := snap.Data()
	rec := dispatch.UserRecord{ID: snap.Ref.ID}
	rec.Token, _ = data[fieldToken].(string)
	rec.RoleID, _ = data[fieldRoleID].(string)
	rec.IsSuperUser, _ = data[fieldIsSuperUser].(bool)
	return rec
}

func validDocID(id string) bool {
	return id != "" && !strings.Contains(id, "/")
}
