package services

import (
	"context"
	"errors"
	"io"
	"sort"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/getactive/apiserver/internal/storage"
	"github.com/getactive/apiserver/internal/store"
	"github.com/getactive/apiserver/internal/token"
	"github.com/getactive/apiserver/types"
	"github.com/google/uuid"
	"github.com/sirupsen/logrus"
	"github.com/sirupsen/logrus/hooks/test"
	"github.com/stretchr/testify/require"
	"golang.org/x/crypto/bcrypt"
)

// memUsers is an in-memory UserRepository enforcing the same unique
// constraints as the users table.
type memUsers struct {
	mu    sync.Mutex
	users map[string]types.User
	// findErr, when set, is returned by FindByEmailOrUsername.
	findErr error
	// skipFind hides existing rows from FindByEmailOrUsername to force the
	// insert path into a constraint violation.
	skipFind bool
}

func newMemUsers() *memUsers {
	return &memUsers{users: make(map[string]types.User)}
}

func (r *memUsers) GetByID(_ context.Context, id string) (types.User, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	u, ok := r.users[id]
	if !ok {
		return types.User{}, store.ErrNotFound
	}
	return u, nil
}

func (r *memUsers) GetByUsername(_ context.Context, username string) (types.User, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	for _, u := range r.users {
		if u.Username == username {
			return u, nil
		}
	}
	return types.User{}, store.ErrNotFound
}

func (r *memUsers) FindByEmailOrUsername(_ context.Context, email, username string) ([]types.User, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.findErr != nil {
		return nil, r.findErr
	}
	if r.skipFind {
		return nil, nil
	}
	var out []types.User
	for _, u := range r.users {
		if u.Email == email || u.Username == username {
			out = append(out, u)
		}
	}
	return out, nil
}

func (r *memUsers) GetByEmailAndUsername(_ context.Context, email, username string) (types.User, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	for _, u := range r.users {
		if u.Email == email && u.Username == username {
			return u, nil
		}
	}
	return types.User{}, store.ErrNotFound
}

func (r *memUsers) Create(_ context.Context, user types.User) (types.User, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	for _, u := range r.users {
		if u.Email == user.Email {
			return types.User{}, &store.ConflictError{Constraint: store.ConstraintUsersEmail}
		}
		if u.Username == user.Username {
			return types.User{}, &store.ConflictError{Constraint: store.ConstraintUsersUsername}
		}
	}
	user.ID = uuid.NewString()
	if user.AccountState == "" {
		user.AccountState = types.AccountUnverified
	}
	user.CreatedAt = time.Now()
	user.UpdatedAt = user.CreatedAt
	r.users[user.ID] = user
	return user, nil
}

func (r *memUsers) TransitionAccountState(_ context.Context, id string, from, to types.AccountState) (bool, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	u, ok := r.users[id]
	if !ok || u.AccountState != from {
		return false, nil
	}
	u.AccountState = to
	r.users[id] = u
	return true, nil
}

func (r *memUsers) UpdateAvatar(_ context.Context, id, key string, updatedAt time.Time) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	u, ok := r.users[id]
	if !ok {
		return store.ErrNotFound
	}
	u.AvatarKey = key
	u.AvatarUpdatedAt = &updatedAt
	r.users[id] = u
	return nil
}

func (r *memUsers) put(u types.User) types.User {
	r.mu.Lock()
	defer r.mu.Unlock()
	if u.ID == "" {
		u.ID = uuid.NewString()
	}
	r.users[u.ID] = u
	return u
}

func (r *memUsers) count() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.users)
}

type sentMail struct {
	Email    string
	Username string
	Token    string
}

type memMail struct {
	mu   sync.Mutex
	sent []sentMail
	err  error
}

func (m *memMail) SendVerificationEmail(_ context.Context, email, username, confirmationToken string) error {
	if m.err != nil {
		return m.err
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	m.sent = append(m.sent, sentMail{Email: email, Username: username, Token: confirmationToken})
	return nil
}

func (m *memMail) Sent() []sentMail {
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([]sentMail(nil), m.sent...)
}

type memObserver struct {
	mu     sync.Mutex
	events map[string]int
}

func (o *memObserver) ObserveAuthEvent(event, outcome string) {
	o.mu.Lock()
	defer o.mu.Unlock()
	if o.events == nil {
		o.events = make(map[string]int)
	}
	o.events[event+"/"+outcome]++
}

func (o *memObserver) count(event, outcome string) int {
	o.mu.Lock()
	defer o.mu.Unlock()
	return o.events[event+"/"+outcome]
}

// memActivities backs activities, memberships and comments with maps.
type memActivities struct {
	mu          sync.Mutex
	users       *memUsers
	activities  map[string]types.Activity
	memberships map[[2]string]types.Membership
	comments    []types.Comment
}

func newMemActivities(users *memUsers) *memActivities {
	return &memActivities{
		users:       users,
		activities:  make(map[string]types.Activity),
		memberships: make(map[[2]string]types.Membership),
	}
}

func (r *memActivities) nameTaken(name, exceptID string) bool {
	for id, a := range r.activities {
		if id != exceptID && a.Name == name {
			return true
		}
	}
	return false
}

func (r *memActivities) CreateWithAdmin(_ context.Context, activity types.Activity, adminID string) (types.Activity, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.nameTaken(activity.Name, "") {
		return types.Activity{}, &store.ConflictError{Constraint: store.ConstraintActivitiesName}
	}
	activity.ID = uuid.NewString()
	activity.CreatedAt = time.Now()
	activity.UpdatedAt = activity.CreatedAt
	r.activities[activity.ID] = activity
	r.memberships[[2]string{adminID, activity.ID}] = types.Membership{UserID: adminID, ActivityID: activity.ID, Role: types.RoleAdmin}
	return activity, nil
}

func (r *memActivities) GetByID(_ context.Context, id string) (types.Activity, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	a, ok := r.activities[id]
	if !ok {
		return types.Activity{}, store.ErrNotFound
	}
	return a, nil
}

func (r *memActivities) List(_ context.Context, name string, offset, limit int) ([]types.Activity, int, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	var all []types.Activity
	for _, a := range r.activities {
		if strings.Contains(strings.ToLower(a.Name), strings.ToLower(name)) {
			all = append(all, a)
		}
	}
	sort.Slice(all, func(i, j int) bool { return all[i].StartTime.Before(all[j].StartTime) })
	return window(all, offset, limit), len(all), nil
}

func (r *memActivities) Update(_ context.Context, activity types.Activity) (types.Activity, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	existing, ok := r.activities[activity.ID]
	if !ok {
		return types.Activity{}, store.ErrNotFound
	}
	if r.nameTaken(activity.Name, activity.ID) {
		return types.Activity{}, &store.ConflictError{Constraint: store.ConstraintActivitiesName}
	}
	activity.CreatedAt = existing.CreatedAt
	activity.UpdatedAt = time.Now()
	r.activities[activity.ID] = activity
	return activity, nil
}

func (r *memActivities) Delete(_ context.Context, id string) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, ok := r.activities[id]; !ok {
		return store.ErrNotFound
	}
	delete(r.activities, id)
	for key := range r.memberships {
		if key[1] == id {
			delete(r.memberships, key)
		}
	}
	return nil
}

func (r *memActivities) Get(_ context.Context, userID, activityID string) (types.Membership, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	m, ok := r.memberships[[2]string{userID, activityID}]
	if !ok {
		return types.Membership{}, store.ErrNotFound
	}
	return m, nil
}

func (r *memActivities) Add(_ context.Context, m types.Membership) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	key := [2]string{m.UserID, m.ActivityID}
	if _, ok := r.memberships[key]; ok {
		return &store.ConflictError{Constraint: store.ConstraintMembershipsPKey}
	}
	r.memberships[key] = m
	return nil
}

func (r *memActivities) Remove(_ context.Context, userID, activityID string) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	key := [2]string{userID, activityID}
	if _, ok := r.memberships[key]; !ok {
		return store.ErrNotFound
	}
	delete(r.memberships, key)
	return nil
}

func (r *memActivities) CountByRole(_ context.Context, activityID string, role types.RoleType) (int, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	n := 0
	for _, m := range r.memberships {
		if m.ActivityID == activityID && m.Role == role {
			n++
		}
	}
	return n, nil
}

func (r *memActivities) ListParticipants(ctx context.Context, activityID string, offset, limit int) ([]types.Participant, int, error) {
	r.mu.Lock()
	var members []types.Membership
	for _, m := range r.memberships {
		if m.ActivityID == activityID {
			members = append(members, m)
		}
	}
	r.mu.Unlock()

	var all []types.Participant
	for _, m := range members {
		u, err := r.users.GetByID(ctx, m.UserID)
		if err != nil {
			return nil, 0, err
		}
		all = append(all, types.Participant{UserID: m.UserID, Username: u.Username, Role: m.Role})
	}
	sort.Slice(all, func(i, j int) bool { return all[i].Username < all[j].Username })
	return window(all, offset, limit), len(all), nil
}

func (r *memActivities) ListJoined(_ context.Context, userID string) ([]types.JoinedActivity, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	var out []types.JoinedActivity
	for _, m := range r.memberships {
		if m.UserID == userID {
			out = append(out, types.JoinedActivity{Activity: r.activities[m.ActivityID], Role: m.Role})
		}
	}
	return out, nil
}

func (r *memActivities) Create(_ context.Context, c types.Comment) (types.Comment, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	c.ID = uuid.NewString()
	c.CreatedAt = time.Now()
	r.comments = append(r.comments, c)
	return c, nil
}

func (r *memActivities) ListByActivity(_ context.Context, activityID string, offset, limit int) ([]types.Comment, int, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	var all []types.Comment
	for i := len(r.comments) - 1; i >= 0; i-- {
		if r.comments[i].ActivityID == activityID {
			all = append(all, r.comments[i])
		}
	}
	return window(all, offset, limit), len(all), nil
}

func window[T any](items []T, offset, limit int) []T {
	if offset >= len(items) {
		return nil
	}
	end := offset + limit
	if limit <= 0 || end > len(items) {
		end = len(items)
	}
	return items[offset:end]
}

type memAvatars struct {
	mu      sync.Mutex
	objects map[string][]byte
	types   map[string]string
	putErr  error
}

func newMemAvatars() *memAvatars {
	return &memAvatars{objects: make(map[string][]byte), types: make(map[string]string)}
}

func (s *memAvatars) Put(_ context.Context, key string, r io.Reader, _ int64, contentType string) error {
	if s.putErr != nil {
		return s.putErr
	}
	data, err := io.ReadAll(r)
	if err != nil {
		return err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	s.objects[key] = data
	s.types[key] = contentType
	return nil
}

func (s *memAvatars) Get(_ context.Context, key string) (storage.Object, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	data, ok := s.objects[key]
	if !ok {
		return storage.Object{}, storage.ErrObjectNotFound
	}
	return storage.Object{
		Body:        io.NopCloser(strings.NewReader(string(data))),
		ContentType: s.types[key],
		Size:        int64(len(data)),
	}, nil
}

func (s *memAvatars) Delete(_ context.Context, key string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.objects, key)
	delete(s.types, key)
	return nil
}

func (s *memAvatars) has(key string) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	_, ok := s.objects[key]
	return ok
}

var errBoom = errors.New("boom")

type authFixture struct {
	svc      *AuthService
	users    *memUsers
	mail     *memMail
	observer *memObserver
	codec    *token.Codec
	logs     *test.Hook
}

func newAuthFixture(t *testing.T) *authFixture {
	t.Helper()
	logger, hook := test.NewNullLogger()
	logger.SetLevel(logrus.DebugLevel)

	codec, err := token.NewCodec("test-signing-secret", logger)
	require.NoError(t, err)

	users := newMemUsers()
	mail := &memMail{}
	observer := &memObserver{}
	svc := NewAuthService(AuthDeps{
		Users:    users,
		Codec:    codec,
		Accounts: NewAccountStateMachine(users, logger),
		Hasher:   NewBcryptHasher(bcrypt.MinCost),
		Mail:     mail,
		Observer: observer,
		Logger:   logger,
	}, time.Hour, 15*time.Minute)

	return &authFixture{svc: svc, users: users, mail: mail, observer: observer, codec: codec, logs: hook}
}

const validPassword = "Secr3t!pass"

func validRegistration(name string) RegisterInput {
	return RegisterInput{Email: name + "@bu.edu", Username: name, Password: validPassword}
}
