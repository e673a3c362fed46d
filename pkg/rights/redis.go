package rights

import (
	"context"
	"fmt"
	"sort"
	"strconv"
	"strings"

	"github.com/go-redis/redis/v8"
	"github.com/google/uuid"
)

// RedisStore keeps rights in Redis. Each row is a hash keyed by its natural
// key; sets index the rows of a (user, resource) pair and the users holding
// anything on a resource.
type RedisStore struct {
	client *redis.Client
	prefix string
	newID  func() string
}

// NewRedisStore creates a new Redis rights store
func NewRedisStore(client *redis.Client, prefix string) *RedisStore {
	if prefix == "" {
		prefix = "rights"
	}
	return &RedisStore{
		client: client,
		prefix: prefix,
		newID:  func() string { return uuid.New().String() },
	}
}

// keySegment escapes the separator so distinct ids never share a key:
// ("alice", "x:y") and ("alice:x", "y") stay apart.
var keySegment = strings.NewReplacer(`\`, `\\`, ":", `\:`)

func (s *RedisStore) key(kind string, segments ...string) string {
	var b strings.Builder
	b.WriteString(s.prefix)
	b.WriteByte(':')
	b.WriteString(kind)
	for _, seg := range segments {
		b.WriteByte(':')
		b.WriteString(keySegment.Replace(seg))
	}
	return b.String()
}

func (s *RedisStore) rightKey(userID, resourceID string, t RightType) string {
	return s.key("right", userID, resourceID, strconv.Itoa(int(t)))
}

func (s *RedisStore) rightIndexKey(userID, resourceID string) string {
	return s.key("rights", userID, resourceID)
}

func (s *RedisStore) inheritKey(userID, resourceID string, t, inheritType RightType) string {
	return s.key("inherit", userID, resourceID, strconv.Itoa(int(t)), strconv.Itoa(int(inheritType)))
}

func (s *RedisStore) inheritIndexKey(userID, resourceID string) string {
	return s.key("inherits", userID, resourceID)
}

func (s *RedisStore) resourceKey(resourceID string) string {
	return s.key("resource", resourceID)
}

// removeRowScript deletes one row and its index entry, then drops the user
// from the resource's user set once neither index of the pair has members.
//
// KEYS: row, own index, other index, resource users. ARGV: member, user id.
var removeRowScript = redis.NewScript(`
redis.call('DEL', KEYS[1])
redis.call('SREM', KEYS[2], ARGV[1])
if redis.call('SCARD', KEYS[2]) == 0 and redis.call('SCARD', KEYS[3]) == 0 then
	redis.call('SREM', KEYS[4], ARGV[2])
end
return 0
`)

// Get retrieves the right a user holds on a resource, or nil if none.
func (s *RedisStore) Get(ctx context.Context, userID, resourceID string, rightType RightType) (*UserRight, error) {
	fields, err := s.client.HGetAll(ctx, s.rightKey(userID, resourceID, rightType)).Result()
	if err != nil {
		return nil, unavailable("get right", err)
	}
	if len(fields) == 0 {
		return nil, nil
	}
	right, err := parseRightHash(fields)
	if err != nil {
		return nil, fmt.Errorf("get right: %w", err)
	}
	return right, nil
}

// GetAll retrieves every right a user holds on a resource
func (s *RedisStore) GetAll(ctx context.Context, userID, resourceID string) ([]UserRight, error) {
	members, err := s.client.SMembers(ctx, s.rightIndexKey(userID, resourceID)).Result()
	if err != nil {
		return nil, unavailable("list rights", err)
	}

	var rights []UserRight
	for _, member := range members {
		t, err := strconv.Atoi(member)
		if err != nil {
			continue
		}
		right, err := s.Get(ctx, userID, resourceID, RightType(t))
		if err != nil {
			return nil, err
		}
		if right != nil {
			rights = append(rights, *right)
		}
	}
	sort.Slice(rights, func(i, j int) bool { return rights[i].Type < rights[j].Type })
	return rights, nil
}

// SetRight creates the right or replaces its permission bitset.
func (s *RedisStore) SetRight(ctx context.Context, userID, resourceID string, rightType RightType, rights Permission) (string, error) {
	if err := validateKey(userID, resourceID, rightType); err != nil {
		return "", err
	}

	key := s.rightKey(userID, resourceID, rightType)
	var idCmd *redis.StringCmd
	_, err := s.client.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
		pipe.HSetNX(ctx, key, "id", s.newID())
		pipe.HSet(ctx, key,
			"resource_id", resourceID,
			"type", int(rightType),
			"user_id", userID,
			"rights", int64(rights),
		)
		pipe.SAdd(ctx, s.rightIndexKey(userID, resourceID), int(rightType))
		pipe.SAdd(ctx, s.resourceKey(resourceID), userID)
		idCmd = pipe.HGet(ctx, key, "id")
		return nil
	})
	if err != nil {
		return "", unavailable("set right", err)
	}
	return idCmd.Val(), nil
}

// RemoveRight deletes a right. Removing an absent right is a no-op.
func (s *RedisStore) RemoveRight(ctx context.Context, userID, resourceID string, rightType RightType) error {
	keys := []string{
		s.rightKey(userID, resourceID, rightType),
		s.rightIndexKey(userID, resourceID),
		s.inheritIndexKey(userID, resourceID),
		s.resourceKey(resourceID),
	}
	if err := removeRowScript.Run(ctx, s.client, keys, int(rightType), userID).Err(); err != nil {
		return unavailable("remove right", err)
	}
	return nil
}

// GetInherit retrieves one inheritance rule, or nil if none.
func (s *RedisStore) GetInherit(ctx context.Context, userID, resourceID string, rightType, inheritType RightType) (*UserInheritRight, error) {
	fields, err := s.client.HGetAll(ctx, s.inheritKey(userID, resourceID, rightType, inheritType)).Result()
	if err != nil {
		return nil, unavailable("get inherit right", err)
	}
	if len(fields) == 0 {
		return nil, nil
	}
	rule, err := parseInheritHash(fields)
	if err != nil {
		return nil, fmt.Errorf("get inherit right: %w", err)
	}
	return rule, nil
}

// GetAllInherit retrieves every inheritance rule of a user on a resource
func (s *RedisStore) GetAllInherit(ctx context.Context, userID, resourceID string) ([]UserInheritRight, error) {
	members, err := s.client.SMembers(ctx, s.inheritIndexKey(userID, resourceID)).Result()
	if err != nil {
		return nil, unavailable("list inherit rights", err)
	}

	var rules []UserInheritRight
	for _, member := range members {
		t, inheritType, ok := parseInheritMember(member)
		if !ok {
			continue
		}
		rule, err := s.GetInherit(ctx, userID, resourceID, t, inheritType)
		if err != nil {
			return nil, err
		}
		if rule != nil {
			rules = append(rules, *rule)
		}
	}
	sort.Slice(rules, func(i, j int) bool {
		if rules[i].Type != rules[j].Type {
			return rules[i].Type < rules[j].Type
		}
		return rules[i].InheritType < rules[j].InheritType
	})
	return rules, nil
}

// SetInherit creates the inheritance rule or replaces its permission bitset.
func (s *RedisStore) SetInherit(ctx context.Context, inheritType RightType, userID, resourceID string, rightType RightType, rights Permission) (string, error) {
	if err := validateKey(userID, resourceID, rightType); err != nil {
		return "", err
	}
	if !inheritType.Valid() {
		return "", fmt.Errorf("%w: unknown inherit type %d", ErrInvalidRight, int(inheritType))
	}

	key := s.inheritKey(userID, resourceID, rightType, inheritType)
	var idCmd *redis.StringCmd
	_, err := s.client.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
		pipe.HSetNX(ctx, key, "id", s.newID())
		pipe.HSet(ctx, key,
			"resource_id", resourceID,
			"type", int(rightType),
			"user_id", userID,
			"rights", int64(rights),
			"inherit_type", int(inheritType),
		)
		pipe.SAdd(ctx, s.inheritIndexKey(userID, resourceID), inheritMember(rightType, inheritType))
		pipe.SAdd(ctx, s.resourceKey(resourceID), userID)
		idCmd = pipe.HGet(ctx, key, "id")
		return nil
	})
	if err != nil {
		return "", unavailable("set inherit right", err)
	}
	return idCmd.Val(), nil
}

// RemoveInherit deletes an inheritance rule. Removing an absent rule is a no-op.
func (s *RedisStore) RemoveInherit(ctx context.Context, userID, resourceID string, rightType, inheritType RightType) error {
	keys := []string{
		s.inheritKey(userID, resourceID, rightType, inheritType),
		s.inheritIndexKey(userID, resourceID),
		s.rightIndexKey(userID, resourceID),
		s.resourceKey(resourceID),
	}
	if err := removeRowScript.Run(ctx, s.client, keys, inheritMember(rightType, inheritType), userID).Err(); err != nil {
		return unavailable("remove inherit right", err)
	}
	return nil
}

// CreateRights writes the initial rights of a new resource row by row.
// Redis offers no rollback, so a failure returns a *BatchError listing the
// right types already granted.
func (s *RedisStore) CreateRights(ctx context.Context, userID, resourceID string, granted map[RightType]Permission, inherit *InheritForm) error {
	plan, err := planRights(ctx, s.GetInherit, userID, resourceID, granted, inherit)
	if err != nil {
		return err
	}
	return writeSequential(ctx, s, userID, resourceID, plan)
}

// RemoveResource deletes every right and inheritance rule on a resource.
func (s *RedisStore) RemoveResource(ctx context.Context, resourceID string) error {
	users, err := s.client.SMembers(ctx, s.resourceKey(resourceID)).Result()
	if err != nil {
		return unavailable("remove resource", err)
	}

	for _, userID := range users {
		rightTypes, err := s.client.SMembers(ctx, s.rightIndexKey(userID, resourceID)).Result()
		if err != nil {
			return unavailable("remove resource", err)
		}
		inherits, err := s.client.SMembers(ctx, s.inheritIndexKey(userID, resourceID)).Result()
		if err != nil {
			return unavailable("remove resource", err)
		}

		keys := []string{s.rightIndexKey(userID, resourceID), s.inheritIndexKey(userID, resourceID)}
		for _, member := range rightTypes {
			if t, err := strconv.Atoi(member); err == nil {
				keys = append(keys, s.rightKey(userID, resourceID, RightType(t)))
			}
		}
		for _, member := range inherits {
			if t, inheritType, ok := parseInheritMember(member); ok {
				keys = append(keys, s.inheritKey(userID, resourceID, t, inheritType))
			}
		}

		if err := s.client.Del(ctx, keys...).Err(); err != nil {
			return unavailable("remove resource", err)
		}
	}

	if err := s.client.Del(ctx, s.resourceKey(resourceID)).Err(); err != nil {
		return unavailable("remove resource", err)
	}
	return nil
}

func inheritMember(t, inheritType RightType) string {
	return fmt.Sprintf("%d:%d", int(t), int(inheritType))
}

func parseInheritMember(member string) (RightType, RightType, bool) {
	parts := strings.SplitN(member, ":", 2)
	if len(parts) != 2 {
		return 0, 0, false
	}
	t, err1 := strconv.Atoi(parts[0])
	inheritType, err2 := strconv.Atoi(parts[1])
	if err1 != nil || err2 != nil {
		return 0, 0, false
	}
	return RightType(t), RightType(inheritType), true
}

func parseRightHash(fields map[string]string) (*UserRight, error) {
	t, err := strconv.Atoi(fields["type"])
	if err != nil {
		return nil, fmt.Errorf("corrupt right type %q: %w", fields["type"], err)
	}
	rights, err := strconv.ParseUint(fields["rights"], 10, 32)
	if err != nil {
		return nil, fmt.Errorf("corrupt rights %q: %w", fields["rights"], err)
	}
	return &UserRight{
		ID:         fields["id"],
		ResourceID: fields["resource_id"],
		Type:       RightType(t),
		UserID:     fields["user_id"],
		Rights:     Permission(rights),
	}, nil
}

func parseInheritHash(fields map[string]string) (*UserInheritRight, error) {
	right, err := parseRightHash(fields)
	if err != nil {
		return nil, err
	}
	inheritType, err := strconv.Atoi(fields["inherit_type"])
	if err != nil {
		return nil, fmt.Errorf("corrupt inherit type %q: %w", fields["inherit_type"], err)
	}
	return &UserInheritRight{
		ID:          right.ID,
		ResourceID:  right.ResourceID,
		Type:        right.Type,
		UserID:      right.UserID,
		Rights:      right.Rights,
		InheritType: RightType(inheritType),
	}, nil
}
