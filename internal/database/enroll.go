package database

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/kozaktomas/smart-library/internal/faceauth"
)

// descriptorCreator is implemented by stores that insert a user and the vector-column
// mirror in one statement.
type descriptorCreator interface {
	CreateUserWithDescriptor(ctx context.Context, user *User, descriptor []float32) error
}

// ErrDuplicateFace matches a *DuplicateFaceError with errors.Is.
var ErrDuplicateFace = errors.New("face already enrolled")

// DuplicateFaceError reports the member whose enrollment a new descriptor collided with.
type DuplicateFaceError struct {
	Match Match
}

func (e *DuplicateFaceError) Error() string {
	return fmt.Sprintf("face already enrolled as user %d (similarity %.3f)", e.Match.UserID, e.Match.Similarity)
}

func (e *DuplicateFaceError) Is(target error) bool {
	return target == ErrDuplicateFace
}

// enrollMu serializes duplicate checks with the write that follows them.
var enrollMu sync.Mutex

// checkUniqueLocked fails when the registered index holds another user scoring above
// threshold against d. Caller holds enrollMu.
func checkUniqueLocked(d faceauth.Descriptor, excludeUserID int64, threshold float64) error {
	idx := GetDescriptorIndex()
	if idx == nil {
		return nil
	}
	if match, dup := idx.FindDuplicate(d, excludeUserID, threshold); dup {
		return &DuplicateFaceError{Match: match}
	}
	return nil
}

// EnrollUniqueUser is EnrollUser behind a duplicate-face check. Check and insert run
// under one lock, so two registrations of the same face in this process cannot both
// pass. Without a registered index no check is made.
func EnrollUniqueUser(ctx context.Context, users UserWriter, user *User, d faceauth.Descriptor, threshold float64) error {
	enrollMu.Lock()
	defer enrollMu.Unlock()

	if err := checkUniqueLocked(d, 0, threshold); err != nil {
		return err
	}
	return EnrollUser(ctx, users, user, d)
}

// ReplaceUniqueDescriptor is ReplaceDescriptor behind the same duplicate-face check.
// The user's own enrollment never counts as a duplicate.
func ReplaceUniqueDescriptor(ctx context.Context, users UserWriter, userID int64, d faceauth.Descriptor, threshold float64) error {
	enrollMu.Lock()
	defer enrollMu.Unlock()

	if err := checkUniqueLocked(d, userID, threshold); err != nil {
		return err
	}
	return ReplaceDescriptor(ctx, users, userID, d)
}

// EnrollUser creates user with descriptor d as its enrollment. d must be valid.
// The registered index, if any, learns the new face.
func EnrollUser(ctx context.Context, users UserWriter, user *User, d faceauth.Descriptor) error {
	doc, err := faceauth.EncodeStoredRecord(d, time.Now())
	if err != nil {
		return err
	}
	user.FacialData = doc

	if dc, ok := users.(descriptorCreator); ok {
		if err := dc.CreateUserWithDescriptor(ctx, user, d.Float32()); err != nil {
			return err
		}
	} else {
		if err := users.CreateUser(ctx, user); err != nil {
			return err
		}
		if err := users.UpdateFacialData(ctx, user.ID, doc, d.Float32()); err != nil {
			return fmt.Errorf("store descriptor: %w", err)
		}
	}

	if idx := GetDescriptorIndex(); idx != nil {
		idx.Upsert(user.ID, d)
	}
	return nil
}

// ReplaceDescriptor re-enrolls userID with d, keeping the cache and index in step.
func ReplaceDescriptor(ctx context.Context, users UserWriter, userID int64, d faceauth.Descriptor) error {
	doc, err := faceauth.EncodeStoredRecord(d, time.Now())
	if err != nil {
		return err
	}
	if err := users.UpdateFacialData(ctx, userID, doc, d.Float32()); err != nil {
		return err
	}
	if c := GetDescriptorCache(); c != nil {
		c.Invalidate(userID)
	}
	if idx := GetDescriptorIndex(); idx != nil {
		idx.Upsert(userID, d)
	}
	return nil
}

// ForgetUser deletes userID and drops it from the cache and index.
func ForgetUser(ctx context.Context, users UserWriter, userID int64) error {
	if err := users.DeleteUser(ctx, userID); err != nil {
		return err
	}
	if c := GetDescriptorCache(); c != nil {
		c.Invalidate(userID)
	}
	if idx := GetDescriptorIndex(); idx != nil {
		idx.Remove(userID)
	}
	return nil
}

// LoadStoredDescriptor returns the decoded enrollment of userID, through the registered
// cache when there is one. Unknown users yield ErrUnknownUser.
func LoadStoredDescriptor(ctx context.Context, users UserReader, userID int64) (*faceauth.StoredDescriptor, error) {
	if c := GetDescriptorCache(); c != nil {
		return c.StoredDescriptor(ctx, users, userID)
	}
	raw, found, err := users.GetFacialData(ctx, userID)
	if err != nil {
		return nil, err
	}
	if !found {
		return nil, ErrUnknownUser
	}
	return faceauth.ParseStoredRecord(raw), nil
}
