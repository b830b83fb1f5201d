package mongodb

import (
	"errors"
	"fmt"

	"medibook/internal/apperrors"

	"go.mongodb.org/mongo-driver/mongo"
)

func notFound(resource, id string, err error) error {
	if errors.Is(err, mongo.ErrNoDocuments) {
		return fmt.Errorf("%s %s: %w", resource, id, apperrors.ErrNotFound)
	}
	return fmt.Errorf("failed to get %s: %w", resource, err)
}
