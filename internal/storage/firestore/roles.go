package firestore

import (
	"context"
	"fmt"

	"cloud.google.com/go/firestore"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"

	"github.com/tinywideclouds/go-bulkpush-service/pkg/dispatch"
)

const RolesCollection = "roles"

// RoleStore implements dispatch.RoleStore on the roles collection.
type RoleStore struct {
	roles *firestore.CollectionRef
}

func NewRoleStore(client *firestore.Client) *RoleStore {
	return &RoleStore{roles: client.Collection(RolesCollection)}
}

func (s *RoleStore) GetRole(ctx context.Context, roleID string) (*dispatch.RoleRecord, error) {
	if !validDocID(roleID) {
		return nil, nil
	}
	snap, err := s.roles.Doc(roleID).Get(ctx)
	if err != nil {
		if status.Code(err) == codes.NotFound {
			return nil, nil
		}
		return nil, fmt.Errorf("failed to get role %s: %w", roleID, err)
	}

	role := &dispatch.RoleRecord{ID: roleID, Permissions: []string{}}
	raw, _ := snap.Data()["permissions"].([]interface{})
	for _, p := range raw {
		if name, ok := p.(string); ok {
			role.Permissions = append(role.Permissions, name)
		}
	}
	return role, nil
}
