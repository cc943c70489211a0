package services

import (
	"context"
	"sort"
	"sync"
	"time"

	"moodlink/internal/models"

	"gorm.io/gorm"
)

// 内存版的仓库与缓存实现，行为对齐 GORM 实现的约定
// （未找到返回 gorm.ErrRecordNotFound，FindByPair 未命中返回 (nil, nil) 等）。

type fakeUserRepo struct {
	users map[uint]*models.User
}

func newFakeUserRepo() *fakeUserRepo {
	return &fakeUserRepo{users: make(map[uint]*models.User)}
}

func (f *fakeUserRepo) addUser(id uint, username string, mood string) *models.User {
	u := &models.User{Username: username, DisplayName: username}
	u.ID = id
	if mood != "" {
		m := mood
		u.CurrentMood = &m
	}
	f.users[id] = u
	return u
}

func (f *fakeUserRepo) Create(ctx context.Context, user *models.User) error {
	f.users[user.ID] = user
	return nil
}

func (f *fakeUserRepo) GetByID(ctx context.Context, id uint) (*models.User, error) {
	u, ok := f.users[id]
	if !ok {
		return nil, gorm.ErrRecordNotFound
	}
	return u, nil
}

func (f *fakeUserRepo) GetByUsername(ctx context.Context, username string) (*models.User, error) {
	for _, u := range f.users {
		if u.Username == username {
			return u, nil
		}
	}
	return nil, gorm.ErrRecordNotFound
}

func (f *fakeUserRepo) GetBasicInfoByID(ctx context.Context, id uint) (*models.UserBasicInfo, error) {
	u, ok := f.users[id]
	if !ok {
		return nil, gorm.ErrRecordNotFound
	}
	return basicInfoOf(u), nil
}

func (f *fakeUserRepo) GetMultipleBasicInfoByIDs(ctx context.Context, userIDs []uint) ([]*models.UserBasicInfo, error) {
	var infos []*models.UserBasicInfo
	for _, id := range userIDs {
		if u, ok := f.users[id]; ok {
			infos = append(infos, basicInfoOf(u))
		}
	}
	return infos, nil
}

func (f *fakeUserRepo) ListCandidates(ctx context.Context, excludeUserID uint, mood string, limit int) ([]*models.UserBasicInfo, error) {
	ids := make([]uint, 0, len(f.users))
	for id := range f.users {
		ids = append(ids, id)
	}
	sort.Slice(ids, func(i, j int) bool { return ids[i] < ids[j] })

	var candidates []*models.UserBasicInfo
	for _, id := range ids {
		if id == excludeUserID {
			continue
		}
		u := f.users[id]
		if mood != "" && (u.CurrentMood == nil || *u.CurrentMood != mood) {
			continue
		}
		candidates = append(candidates, basicInfoOf(u))
		if limit > 0 && len(candidates) == limit {
			break
		}
	}
	return candidates, nil
}

func (f *fakeUserRepo) SetPresence(ctx context.Context, userID uint, online bool) error {
	if u, ok := f.users[userID]; ok {
		u.IsOnline = online
	}
	return nil
}

func basicInfoOf(u *models.User) *models.UserBasicInfo {
	return &models.UserBasicInfo{
		ID:          u.ID,
		Username:    u.Username,
		DisplayName: u.DisplayName,
		AvatarURL:   u.AvatarURL,
		CurrentMood: u.CurrentMood,
		IsOnline:    u.IsOnline,
	}
}

type fakeConnRepo struct {
	conns  map[uint]*models.Connection
	nextID uint

	// beforeCreate 在 Create 落库前调用，测试用它注入并发竞争
	beforeCreate func(conn *models.Connection) error
}

func newFakeConnRepo() *fakeConnRepo {
	return &fakeConnRepo{conns: make(map[uint]*models.Connection), nextID: 1}
}

func (f *fakeConnRepo) insert(conn *models.Connection) *models.Connection {
	conn.ID = f.nextID
	f.nextID++
	conn.CreatedAt = time.Now()
	f.conns[conn.ID] = conn
	return conn
}

func (f *fakeConnRepo) Create(ctx context.Context, conn *models.Connection) error {
	if f.beforeCreate != nil {
		if err := f.beforeCreate(conn); err != nil {
			return err
		}
	}
	for _, existing := range f.conns {
		if existing.UserLowID == conn.UserLowID && existing.UserHighID == conn.UserHighID {
			return gorm.ErrDuplicatedKey
		}
	}
	f.insert(conn)
	return nil
}

func (f *fakeConnRepo) GetByID(ctx context.Context, connectionID uint) (*models.Connection, error) {
	conn, ok := f.conns[connectionID]
	if !ok {
		return nil, gorm.ErrRecordNotFound
	}
	return conn, nil
}

func (f *fakeConnRepo) FindByPair(ctx context.Context, userLow, userHigh uint) (*models.Connection, error) {
	for _, conn := range f.conns {
		if conn.UserLowID == userLow && conn.UserHighID == userHigh {
			return conn, nil
		}
	}
	return nil, nil
}

func (f *fakeConnRepo) MarkAccepted(ctx context.Context, connectionID uint, acceptedAt time.Time) (int64, error) {
	conn, ok := f.conns[connectionID]
	if !ok || conn.Status != models.ConnectionStatusPending {
		return 0, nil
	}
	conn.Status = models.ConnectionStatusAccepted
	at := acceptedAt
	conn.AcceptedAt = &at
	return 1, nil
}

func (f *fakeConnRepo) ListPendingFor(ctx context.Context, userID uint) ([]models.Connection, error) {
	var result []models.Connection
	for _, conn := range f.sortedConns() {
		if conn.HasMember(userID) && conn.Status == models.ConnectionStatusPending && conn.RequestedBy != userID {
			result = append(result, *conn)
		}
	}
	return result, nil
}

func (f *fakeConnRepo) ListAcceptedFor(ctx context.Context, userID uint) ([]models.Connection, error) {
	var result []models.Connection
	for _, conn := range f.sortedConns() {
		if conn.HasMember(userID) && conn.Status == models.ConnectionStatusAccepted {
			result = append(result, *conn)
		}
	}
	return result, nil
}

func (f *fakeConnRepo) CountPendingFor(ctx context.Context, userID uint) (int64, error) {
	pending, _ := f.ListPendingFor(ctx, userID)
	return int64(len(pending)), nil
}

func (f *fakeConnRepo) ListRequestedBy(ctx context.Context, userID uint) ([]models.Connection, error) {
	var result []models.Connection
	for _, conn := range f.sortedConns() {
		if conn.RequestedBy == userID {
			result = append(result, *conn)
		}
	}
	return result, nil
}

func (f *fakeConnRepo) sortedConns() []*models.Connection {
	conns := make([]*models.Connection, 0, len(f.conns))
	for _, conn := range f.conns {
		conns = append(conns, conn)
	}
	sort.Slice(conns, func(i, j int) bool { return conns[i].ID < conns[j].ID })
	return conns
}

type fakeMsgRepo struct {
	messages []*models.DirectMessage
	nextID   uint
	clock    time.Time
}

func newFakeMsgRepo() *fakeMsgRepo {
	return &fakeMsgRepo{nextID: 1, clock: time.Now()}
}

func (f *fakeMsgRepo) Create(ctx context.Context, message *models.DirectMessage) error {
	message.ID = f.nextID
	f.nextID++
	f.clock = f.clock.Add(time.Millisecond)
	message.CreatedAt = f.clock
	f.messages = append(f.messages, message)
	return nil
}

func (f *fakeMsgRepo) ListByPair(ctx context.Context, userLow, userHigh uint, limit, offset int) ([]*models.DirectMessage, error) {
	var thread []*models.DirectMessage
	for _, m := range f.messages {
		if m.UserLowID == userLow && m.UserHighID == userHigh {
			thread = append(thread, m)
		}
	}
	// 插入顺序即 (created_at, id) 升序
	if offset > 0 {
		if offset >= len(thread) {
			return nil, nil
		}
		thread = thread[offset:]
	}
	if limit > 0 && len(thread) > limit {
		thread = thread[:limit]
	}
	return thread, nil
}

func (f *fakeMsgRepo) DeleteByPair(ctx context.Context, userLow, userHigh uint) (int64, error) {
	var kept []*models.DirectMessage
	var deleted int64
	for _, m := range f.messages {
		if m.UserLowID == userLow && m.UserHighID == userHigh {
			deleted++
			continue
		}
		kept = append(kept, m)
	}
	f.messages = kept
	return deleted, nil
}

type fakeCountCache struct {
	mu          sync.Mutex
	counts      map[uint]int64
	invalidated []uint
}

func newFakeCountCache() *fakeCountCache {
	return &fakeCountCache{counts: make(map[uint]int64)}
}

func (f *fakeCountCache) Get(ctx context.Context, userID uint) (int64, bool, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	count, ok := f.counts[userID]
	return count, ok, nil
}

func (f *fakeCountCache) Set(ctx context.Context, userID uint, count int64) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.counts[userID] = count
	return nil
}

func (f *fakeCountCache) Invalidate(ctx context.Context, userID uint) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	delete(f.counts, userID)
	f.invalidated = append(f.invalidated, userID)
	return nil
}

type publishedEvent struct {
	topic   string
	key     string
	payload []byte
}

type fakeProducer struct {
	mu     sync.Mutex
	events []publishedEvent
}

func (f *fakeProducer) Publish(ctx context.Context, topic string, key, payload []byte) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.events = append(f.events, publishedEvent{topic: topic, key: string(key), payload: payload})
	return nil
}

func (f *fakeProducer) Close() {}

func (f *fakeProducer) published() []publishedEvent {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]publishedEvent(nil), f.events...)
}
