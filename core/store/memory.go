package store

import (
	"context"
	"database/sql"
	"sort"
	"sync"
	"time"
)

// Memory-backed store implementations mirroring the Postgres ones. Used by
// tests and local development; they hold the same invariants (soft deletes,
// cascades, counter bumps) without a database.

type memoryBots struct {
	mu     sync.RWMutex
	nextID int64
	byID   map[int64]*Bot
	menus  *memoryMenus
}

// NewMemoryBots builds an in-memory bot registry. When menus is non-nil,
// Deactivate cascades into it the way the SQL implementation does.
func NewMemoryBots(menus Menus) Bots {
	mm, _ := menus.(*memoryMenus)
	return &memoryBots{byID: make(map[int64]*Bot), menus: mm}
}

func (s *memoryBots) Create(_ context.Context, b *Bot) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.nextID++
	b.ID = s.nextID
	b.Active = true
	b.CreatedAt = time.Now().UTC()
	cp := *b
	s.byID[b.ID] = &cp
	return nil
}

func (s *memoryBots) GetByUsername(_ context.Context, username string) (*Bot, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	for _, b := range s.byID {
		if b.Username == username && b.Active {
			cp := *b
			return &cp, nil
		}
	}
	return nil, ErrNotFound
}

func (s *memoryBots) GetByID(_ context.Context, id int64) (*Bot, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if b, ok := s.byID[id]; ok && b.Active {
		cp := *b
		return &cp, nil
	}
	return nil, ErrNotFound
}

func (s *memoryBots) ListByOwner(_ context.Context, ownerID int64) ([]Bot, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	var out []Bot
	for _, b := range s.byID {
		if b.OwnerID == ownerID && b.Active {
			out = append(out, *b)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out, nil
}

func (s *memoryBots) CountActiveByOwner(ctx context.Context, ownerID int64) (int, error) {
	list, err := s.ListByOwner(ctx, ownerID)
	return len(list), err
}

func (s *memoryBots) SetWelcomeText(_ context.Context, id int64, text string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	b, ok := s.byID[id]
	if !ok || !b.Active {
		return ErrNotFound
	}
	b.WelcomeText = sql.NullString{String: text, Valid: true}
	return nil
}

func (s *memoryBots) Deactivate(ctx context.Context, id int64) error {
	s.mu.Lock()
	b, ok := s.byID[id]
	if !ok || !b.Active {
		s.mu.Unlock()
		return ErrNotFound
	}
	b.Active = false
	s.mu.Unlock()
	if s.menus != nil {
		s.menus.deactivateByBot(id)
	}
	return nil
}

// MemoryUsers is the in-memory platform user directory. Exported so tests can
// adjust tiers directly, standing in for a billing write.
type MemoryUsers struct {
	mu     sync.Mutex
	nextID int64
	byExt  map[int64]*User
}

// NewMemoryUsers builds an in-memory platform user directory.
func NewMemoryUsers() *MemoryUsers {
	return &MemoryUsers{byExt: make(map[int64]*User)}
}

func (s *MemoryUsers) GetByExternalID(_ context.Context, externalID int64) (*User, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if u, ok := s.byExt[externalID]; ok {
		cp := *u
		return &cp, nil
	}
	return nil, ErrNotFound
}

func (s *MemoryUsers) Upsert(_ context.Context, externalID int64, username string) (*User, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if u, ok := s.byExt[externalID]; ok {
		u.Username = username
		cp := *u
		return &cp, nil
	}
	s.nextID++
	u := &User{
		ID:         s.nextID,
		ExternalID: externalID,
		Username:   username,
		Tier:       "free",
		CreatedAt:  time.Now().UTC(),
	}
	s.byExt[externalID] = u
	cp := *u
	return &cp, nil
}

// SetTier adjusts a user's plan; test helper mirroring a billing write.
func (s *MemoryUsers) SetTier(externalID int64, tierName string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if u, ok := s.byExt[externalID]; ok {
		u.Tier = tierName
	}
}

type subscriberKey struct {
	botID  int64
	userID int64
}

type memorySubscribers struct {
	mu     sync.Mutex
	nextID int64
	byKey  map[subscriberKey]*Subscriber
}

// NewMemorySubscribers builds an in-memory audience store.
func NewMemorySubscribers() Subscribers {
	return &memorySubscribers{byKey: make(map[subscriberKey]*Subscriber)}
}

func (s *memorySubscribers) Touch(_ context.Context, botID, externalUserID int64, username string, at time.Time) (*Subscriber, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	key := subscriberKey{botID, externalUserID}
	sub, ok := s.byKey[key]
	if !ok {
		s.nextID++
		sub = &Subscriber{
			ID:             s.nextID,
			BotID:          botID,
			ExternalUserID: externalUserID,
			Active:         true,
			CreatedAt:      at.UTC(),
		}
		s.byKey[key] = sub
	}
	sub.Username = username
	sub.LastInteraction = at.UTC()
	if !sub.Blocked {
		sub.Active = true
	}
	cp := *sub
	return &cp, nil
}

func (s *memorySubscribers) Get(_ context.Context, botID, externalUserID int64) (*Subscriber, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if sub, ok := s.byKey[subscriberKey{botID, externalUserID}]; ok {
		cp := *sub
		return &cp, nil
	}
	return nil, ErrNotFound
}

func (s *memorySubscribers) ListActive(_ context.Context, botID int64) ([]Subscriber, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var out []Subscriber
	for _, sub := range s.byKey {
		if sub.BotID == botID && sub.Active && !sub.Blocked {
			out = append(out, *sub)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out, nil
}

func (s *memorySubscribers) CountActive(ctx context.Context, botID int64) (int, error) {
	list, err := s.ListActive(ctx, botID)
	return len(list), err
}

func (s *memorySubscribers) Block(_ context.Context, subscriberID int64) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, sub := range s.byKey {
		if sub.ID == subscriberID {
			sub.Blocked = true
			sub.Active = false
			return nil
		}
	}
	return ErrNotFound
}

type flowKey struct {
	botID   int64
	actorID int64
}

type memoryFlowStates struct {
	mu    sync.Mutex
	byKey map[flowKey]*FlowStateRow
}

// NewMemoryFlowStates builds an in-memory conversation state store.
func NewMemoryFlowStates() FlowStates {
	return &memoryFlowStates{byKey: make(map[flowKey]*FlowStateRow)}
}

func (s *memoryFlowStates) Get(_ context.Context, botID, actorID int64) (*FlowStateRow, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if row, ok := s.byKey[flowKey{botID, actorID}]; ok {
		cp := *row
		cp.Payload = append([]byte(nil), row.Payload...)
		return &cp, nil
	}
	return nil, ErrNotFound
}

func (s *memoryFlowStates) Set(_ context.Context, row *FlowStateRow) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	cp := *row
	cp.Payload = append([]byte(nil), row.Payload...)
	s.byKey[flowKey{row.BotID, row.ActorID}] = &cp
	return nil
}

func (s *memoryFlowStates) Clear(_ context.Context, botID, actorID int64) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.byKey, flowKey{botID, actorID})
	return nil
}

type memoryMenus struct {
	mu         sync.Mutex
	nextMenuID int64
	nextBtnID  int64
	menus      map[int64]*Menu
	buttons    map[int64]*Button
}

// NewMemoryMenus builds an in-memory menu tree store.
func NewMemoryMenus() Menus {
	return &memoryMenus{menus: make(map[int64]*Menu), buttons: make(map[int64]*Button)}
}

func (s *memoryMenus) CreateMenu(_ context.Context, m *Menu) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if m.IsDefault {
		for _, other := range s.menus {
			if other.BotID == m.BotID {
				other.IsDefault = false
			}
		}
	}
	s.nextMenuID++
	m.ID = s.nextMenuID
	m.Active = true
	m.CreatedAt = time.Now().UTC()
	cp := *m
	s.menus[m.ID] = &cp
	return nil
}

func (s *memoryMenus) GetMenu(_ context.Context, id int64) (*Menu, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if m, ok := s.menus[id]; ok && m.Active {
		cp := *m
		return &cp, nil
	}
	return nil, ErrNotFound
}

func (s *memoryMenus) GetDefaultMenu(_ context.Context, botID int64) (*Menu, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, m := range s.menus {
		if m.BotID == botID && m.IsDefault && m.Active {
			cp := *m
			return &cp, nil
		}
	}
	return nil, ErrNotFound
}

func (s *memoryMenus) ListMenus(_ context.Context, botID int64) ([]Menu, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var out []Menu
	for _, m := range s.menus {
		if m.BotID == botID && m.Active {
			out = append(out, *m)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out, nil
}

func (s *memoryMenus) ListChildren(_ context.Context, parentID int64) ([]Menu, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var out []Menu
	for _, m := range s.menus {
		if m.ParentID.Valid && m.ParentID.Int64 == parentID && m.Active {
			out = append(out, *m)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out, nil
}

func (s *memoryMenus) CountActiveMenus(_ context.Context, botID int64) (int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	n := 0
	for _, m := range s.menus {
		if m.BotID == botID && m.Active {
			n++
		}
	}
	return n, nil
}

func (s *memoryMenus) UpdateMenuName(_ context.Context, id int64, name string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if m, ok := s.menus[id]; ok && m.Active {
		m.Name = name
		return nil
	}
	return ErrNotFound
}

func (s *memoryMenus) UpdateMenuDescription(_ context.Context, id int64, description string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if m, ok := s.menus[id]; ok && m.Active {
		m.Description = description
		return nil
	}
	return ErrNotFound
}

func (s *memoryMenus) UpdateMenuParent(_ context.Context, id int64, parentID sql.NullInt64) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if m, ok := s.menus[id]; ok && m.Active {
		m.ParentID = parentID
		return nil
	}
	return ErrNotFound
}

func (s *memoryMenus) DeactivateMenu(_ context.Context, id int64) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	m, ok := s.menus[id]
	if !ok || !m.Active {
		return ErrNotFound
	}
	m.Active = false
	for _, b := range s.buttons {
		if b.MenuID == id {
			b.Active = false
		}
	}
	return nil
}

func (s *memoryMenus) deactivateByBot(botID int64) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, m := range s.menus {
		if m.BotID != botID {
			continue
		}
		m.Active = false
		for _, b := range s.buttons {
			if b.MenuID == m.ID {
				b.Active = false
			}
		}
	}
}

func (s *memoryMenus) CreateButton(_ context.Context, b *Button) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.nextBtnID++
	b.ID = s.nextBtnID
	b.Active = true
	b.CreatedAt = time.Now().UTC()
	cp := *b
	s.buttons[b.ID] = &cp
	return nil
}

func (s *memoryMenus) GetButton(_ context.Context, id int64) (*Button, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if b, ok := s.buttons[id]; ok && b.Active {
		cp := *b
		return &cp, nil
	}
	return nil, ErrNotFound
}

func (s *memoryMenus) ListButtons(_ context.Context, menuID int64) ([]Button, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var out []Button
	for _, b := range s.buttons {
		if b.MenuID == menuID && b.Active {
			out = append(out, *b)
		}
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].Row != out[j].Row {
			return out[i].Row < out[j].Row
		}
		if out[i].Col != out[j].Col {
			return out[i].Col < out[j].Col
		}
		return out[i].ID < out[j].ID
	})
	return out, nil
}

func (s *memoryMenus) CountActiveButtons(_ context.Context, menuID int64) (int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	n := 0
	for _, b := range s.buttons {
		if b.MenuID == menuID && b.Active {
			n++
		}
	}
	return n, nil
}

type navKey struct {
	botID int64
	subID int64
}

type memoryNavigation struct {
	mu    sync.Mutex
	byKey map[navKey]*NavigationState
}

// NewMemoryNavigation builds an in-memory breadcrumb store.
func NewMemoryNavigation() Navigation {
	return &memoryNavigation{byKey: make(map[navKey]*NavigationState)}
}

func (s *memoryNavigation) Get(_ context.Context, botID, subscriberID int64) (*NavigationState, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if st, ok := s.byKey[navKey{botID, subscriberID}]; ok {
		cp := *st
		cp.Path = append([]byte(nil), st.Path...)
		return &cp, nil
	}
	return nil, ErrNotFound
}

func (s *memoryNavigation) Save(_ context.Context, st *NavigationState) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	cp := *st
	cp.Path = append([]byte(nil), st.Path...)
	s.byKey[navKey{st.BotID, st.SubscriberID}] = &cp
	return nil
}

// MemoryNavigationEvents collects appended events for inspection in tests.
type MemoryNavigationEvents struct {
	mu     sync.Mutex
	nextID int64
	events []NavigationEvent
}

// NewMemoryNavigationEvents builds an in-memory analytics sink.
func NewMemoryNavigationEvents() *MemoryNavigationEvents {
	return &MemoryNavigationEvents{}
}

func (s *MemoryNavigationEvents) Append(_ context.Context, ev *NavigationEvent) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.nextID++
	ev.ID = s.nextID
	ev.CreatedAt = time.Now().UTC()
	s.events = append(s.events, *ev)
	return nil
}

// Events returns a copy of everything appended so far.
func (s *MemoryNavigationEvents) Events() []NavigationEvent {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]NavigationEvent(nil), s.events...)
}

type memoryBroadcasts struct {
	mu         sync.Mutex
	nextID     int64
	nextRecID  int64
	byID       map[int64]*Broadcast
	deliveries map[int64][]DeliveryRecord
}

// NewMemoryBroadcasts builds an in-memory broadcast store.
func NewMemoryBroadcasts() Broadcasts {
	return &memoryBroadcasts{
		byID:       make(map[int64]*Broadcast),
		deliveries: make(map[int64][]DeliveryRecord),
	}
}

func (s *memoryBroadcasts) Create(_ context.Context, b *Broadcast) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.nextID++
	b.ID = s.nextID
	b.Status = BroadcastDraft
	b.CreatedAt = time.Now().UTC()
	cp := *b
	s.byID[b.ID] = &cp
	return nil
}

func (s *memoryBroadcasts) Get(_ context.Context, id int64) (*Broadcast, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if b, ok := s.byID[id]; ok {
		cp := *b
		return &cp, nil
	}
	return nil, ErrNotFound
}

func (s *memoryBroadcasts) ListByBot(_ context.Context, botID int64, limit int) ([]Broadcast, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if limit <= 0 {
		limit = 10
	}
	var out []Broadcast
	for _, b := range s.byID {
		if b.BotID == botID {
			out = append(out, *b)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID > out[j].ID })
	if len(out) > limit {
		out = out[:limit]
	}
	return out, nil
}

func (s *memoryBroadcasts) MarkSending(_ context.Context, id int64, total int, at time.Time) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	b, ok := s.byID[id]
	if !ok || b.Status != BroadcastDraft {
		return ErrNotFound
	}
	b.Status = BroadcastSending
	b.TotalSubscribers = total
	b.StartedAt = sql.NullTime{Time: at.UTC(), Valid: true}
	return nil
}

func (s *memoryBroadcasts) AppendDelivery(_ context.Context, rec *DeliveryRecord) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	b, ok := s.byID[rec.BroadcastID]
	if !ok {
		return ErrNotFound
	}
	s.nextRecID++
	rec.ID = s.nextRecID
	rec.CreatedAt = time.Now().UTC()
	s.deliveries[rec.BroadcastID] = append(s.deliveries[rec.BroadcastID], *rec)
	if rec.Status == DeliverySent {
		b.Successful++
	} else {
		b.Failed++
	}
	return nil
}

func (s *memoryBroadcasts) Finish(_ context.Context, id int64, status string, at time.Time) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	b, ok := s.byID[id]
	if !ok || b.Status != BroadcastSending {
		return ErrNotFound
	}
	b.Status = status
	b.CompletedAt = sql.NullTime{Time: at.UTC(), Valid: true}
	return nil
}

func (s *memoryBroadcasts) ListDeliveries(_ context.Context, broadcastID int64) ([]DeliveryRecord, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]DeliveryRecord(nil), s.deliveries[broadcastID]...), nil
}
