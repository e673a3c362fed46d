package rights

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/google/uuid"
	"github.com/semanticlink/todo-hypermedia-sub002/pkg/storage"
)

// queryer is satisfied by both *sql.DB and *sql.Tx.
type queryer interface {
	ExecContext(ctx context.Context, query string, args ...interface{}) (sql.Result, error)
	QueryContext(ctx context.Context, query string, args ...interface{}) (*sql.Rows, error)
	QueryRowContext(ctx context.Context, query string, args ...interface{}) *sql.Row
}

// SQLStore handles rights persistence in a SQL database
type SQLStore struct {
	db      *sql.DB
	dialect storage.Dialect
	newID   func() string
}

// NewSQLStore creates a new SQL rights store
func NewSQLStore(db *sql.DB, dialect storage.Dialect) *SQLStore {
	return &SQLStore{
		db:      db,
		dialect: dialect,
		newID:   func() string { return uuid.New().String() },
	}
}

// Get retrieves the right a user holds on a resource, or nil if none.
func (s *SQLStore) Get(ctx context.Context, userID, resourceID string, rightType RightType) (*UserRight, error) {
	query := s.dialect.Rebind(`
		SELECT id, resource_id, type, user_id, rights
		FROM user_rights
		WHERE user_id = ? AND resource_id = ? AND type = ?
	`)

	right, err := scanRight(s.db.QueryRowContext(ctx, query, userID, resourceID, int(rightType)))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, unavailable("get right", err)
	}
	return right, nil
}

// GetAll retrieves every right a user holds on a resource
func (s *SQLStore) GetAll(ctx context.Context, userID, resourceID string) ([]UserRight, error) {
	query := s.dialect.Rebind(`
		SELECT id, resource_id, type, user_id, rights
		FROM user_rights
		WHERE user_id = ? AND resource_id = ?
		ORDER BY type ASC
	`)

	rows, err := s.db.QueryContext(ctx, query, userID, resourceID)
	if err != nil {
		return nil, unavailable("list rights", err)
	}
	defer rows.Close()

	var rights []UserRight
	for rows.Next() {
		right, err := scanRight(rows)
		if err != nil {
			return nil, unavailable("scan right", err)
		}
		rights = append(rights, *right)
	}
	if err := rows.Err(); err != nil {
		return nil, unavailable("list rights", err)
	}
	return rights, nil
}

// SetRight creates the right or replaces its permission bitset.
func (s *SQLStore) SetRight(ctx context.Context, userID, resourceID string, rightType RightType, rights Permission) (string, error) {
	if err := validateKey(userID, resourceID, rightType); err != nil {
		return "", err
	}
	return s.setRight(ctx, s.db, UserRight{UserID: userID, ResourceID: resourceID, Type: rightType, Rights: rights})
}

func (s *SQLStore) setRight(ctx context.Context, q queryer, right UserRight) (string, error) {
	query := s.dialect.Rebind(`
		INSERT INTO user_rights (id, resource_id, type, user_id, rights)
		VALUES (?, ?, ?, ?, ?)
		ON CONFLICT (user_id, resource_id, type)
		DO UPDATE SET rights = excluded.rights, updated_at = CURRENT_TIMESTAMP
		RETURNING id
	`)

	var id string
	err := q.QueryRowContext(ctx, query,
		s.newID(),
		right.ResourceID,
		int(right.Type),
		right.UserID,
		int64(right.Rights),
	).Scan(&id)
	if err != nil {
		return "", unavailable("set right", err)
	}
	return id, nil
}

// RemoveRight deletes a right. Removing an absent right is a no-op.
func (s *SQLStore) RemoveRight(ctx context.Context, userID, resourceID string, rightType RightType) error {
	query := s.dialect.Rebind(`DELETE FROM user_rights WHERE user_id = ? AND resource_id = ? AND type = ?`)
	if _, err := s.db.ExecContext(ctx, query, userID, resourceID, int(rightType)); err != nil {
		return unavailable("remove right", err)
	}
	return nil
}

// GetInherit retrieves one inheritance rule, or nil if none.
func (s *SQLStore) GetInherit(ctx context.Context, userID, resourceID string, rightType, inheritType RightType) (*UserInheritRight, error) {
	return s.getInherit(ctx, s.db, userID, resourceID, rightType, inheritType)
}

func (s *SQLStore) getInherit(ctx context.Context, q queryer, userID, resourceID string, rightType, inheritType RightType) (*UserInheritRight, error) {
	query := s.dialect.Rebind(`
		SELECT id, resource_id, type, user_id, rights, inherit_type
		FROM user_inherit_rights
		WHERE user_id = ? AND resource_id = ? AND type = ? AND inherit_type = ?
	`)

	rule, err := scanInherit(q.QueryRowContext(ctx, query, userID, resourceID, int(rightType), int(inheritType)))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, unavailable("get inherit right", err)
	}
	return rule, nil
}

// GetAllInherit retrieves every inheritance rule of a user on a resource
func (s *SQLStore) GetAllInherit(ctx context.Context, userID, resourceID string) ([]UserInheritRight, error) {
	query := s.dialect.Rebind(`
		SELECT id, resource_id, type, user_id, rights, inherit_type
		FROM user_inherit_rights
		WHERE user_id = ? AND resource_id = ?
		ORDER BY type ASC, inherit_type ASC
	`)

	rows, err := s.db.QueryContext(ctx, query, userID, resourceID)
	if err != nil {
		return nil, unavailable("list inherit rights", err)
	}
	defer rows.Close()

	var rules []UserInheritRight
	for rows.Next() {
		rule, err := scanInherit(rows)
		if err != nil {
			return nil, unavailable("scan inherit right", err)
		}
		rules = append(rules, *rule)
	}
	if err := rows.Err(); err != nil {
		return nil, unavailable("list inherit rights", err)
	}
	return rules, nil
}

// SetInherit creates the inheritance rule or replaces its permission bitset.
func (s *SQLStore) SetInherit(ctx context.Context, inheritType RightType, userID, resourceID string, rightType RightType, rights Permission) (string, error) {
	if err := validateKey(userID, resourceID, rightType); err != nil {
		return "", err
	}
	if !inheritType.Valid() {
		return "", fmt.Errorf("%w: unknown inherit type %d", ErrInvalidRight, int(inheritType))
	}
	return s.setInherit(ctx, s.db, UserInheritRight{
		UserID:      userID,
		ResourceID:  resourceID,
		Type:        rightType,
		Rights:      rights,
		InheritType: inheritType,
	})
}

func (s *SQLStore) setInherit(ctx context.Context, q queryer, rule UserInheritRight) (string, error) {
	query := s.dialect.Rebind(`
		INSERT INTO user_inherit_rights (id, resource_id, type, user_id, rights, inherit_type)
		VALUES (?, ?, ?, ?, ?, ?)
		ON CONFLICT (user_id, resource_id, type, inherit_type)
		DO UPDATE SET rights = excluded.rights, updated_at = CURRENT_TIMESTAMP
		RETURNING id
	`)

	var id string
	err := q.QueryRowContext(ctx, query,
		s.newID(),
		rule.ResourceID,
		int(rule.Type),
		rule.UserID,
		int64(rule.Rights),
		int(rule.InheritType),
	).Scan(&id)
	if err != nil {
		return "", unavailable("set inherit right", err)
	}
	return id, nil
}

// RemoveInherit deletes an inheritance rule. Removing an absent rule is a no-op.
func (s *SQLStore) RemoveInherit(ctx context.Context, userID, resourceID string, rightType, inheritType RightType) error {
	query := s.dialect.Rebind(`
		DELETE FROM user_inherit_rights
		WHERE user_id = ? AND resource_id = ? AND type = ? AND inherit_type = ?
	`)
	if _, err := s.db.ExecContext(ctx, query, userID, resourceID, int(rightType), int(inheritType)); err != nil {
		return unavailable("remove inherit right", err)
	}
	return nil
}

// CreateRights writes the initial rights of a new resource in one
// transaction. On failure nothing is granted and the returned *BatchError
// names the right type whose write failed.
func (s *SQLStore) CreateRights(ctx context.Context, userID, resourceID string, granted map[RightType]Permission, inherit *InheritForm) error {
	plan, err := planRights(ctx, s.GetInherit, userID, resourceID, granted, inherit)
	if err != nil {
		return err
	}

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return unavailable("begin create rights", err)
	}

	fail := func(failed RightType, err error) error {
		tx.Rollback()
		return &BatchError{UserID: userID, ResourceID: resourceID, Failed: failed, Err: err}
	}

	for _, right := range plan.rights {
		if _, err := s.setRight(ctx, tx, right); err != nil {
			return fail(right.Type, err)
		}
	}
	for _, rule := range plan.copies {
		if _, err := s.setInherit(ctx, tx, rule); err != nil {
			return fail(rule.InheritType, err)
		}
	}

	if err := tx.Commit(); err != nil {
		return unavailable("commit create rights", err)
	}
	return nil
}

// RemoveResource deletes every right and inheritance rule on a resource.
func (s *SQLStore) RemoveResource(ctx context.Context, resourceID string) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return unavailable("begin remove resource", err)
	}

	for _, table := range []string{"user_rights", "user_inherit_rights"} {
		query := s.dialect.Rebind("DELETE FROM " + table + " WHERE resource_id = ?")
		if _, err := tx.ExecContext(ctx, query, resourceID); err != nil {
			tx.Rollback()
			return unavailable("remove resource", err)
		}
	}

	if err := tx.Commit(); err != nil {
		return unavailable("commit remove resource", err)
	}
	return nil
}

type rowScanner interface {
	Scan(dest ...interface{}) error
}

func scanRight(scanner rowScanner) (*UserRight, error) {
	var (
		right     UserRight
		rightType int
		rights    int64
	)
	if err := scanner.Scan(&right.ID, &right.ResourceID, &rightType, &right.UserID, &rights); err != nil {
		return nil, err
	}
	right.Type = RightType(rightType)
	right.Rights = Permission(uint32(rights))
	return &right, nil
}

func scanInherit(scanner rowScanner) (*UserInheritRight, error) {
	var (
		rule        UserInheritRight
		rightType   int
		inheritType int
		rights      int64
	)
	if err := scanner.Scan(&rule.ID, &rule.ResourceID, &rightType, &rule.UserID, &rights, &inheritType); err != nil {
		return nil, err
	}
	rule.Type = RightType(rightType)
	rule.InheritType = RightType(inheritType)
	rule.Rights = Permission(uint32(rights))
	return &rule, nil
}
