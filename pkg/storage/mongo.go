// Copyright 2026 KrakLabs
//
// SPDX-License-Identifier: AGPL-3.0-only

package storage

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sort"
	"sync"
	"time"

	"github.com/hashicorp/go-multierror"
	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"

	"github.com/kraklabs/lazyjson/pkg/codec"
)

// MongoBackendName is the configuration name of the MongoDB backend.
const MongoBackendName = "mongodb"

// DefaultMongoDatabase is the database holding one collection per hashmap.
const DefaultMongoDatabase = "cf_graph"

// Field names of stored records.
const (
	fieldKey   = "key"
	fieldValue = "value"
	fieldHash  = "contentHash"
)

// collection is the subset of *mongo.Collection the backend uses.
type collection interface {
	CountDocuments(ctx context.Context, filter interface{}, opts ...*options.CountOptions) (int64, error)
	FindOne(ctx context.Context, filter interface{}, opts ...*options.FindOneOptions) *mongo.SingleResult
	Find(ctx context.Context, filter interface{}, opts ...*options.FindOptions) (*mongo.Cursor, error)
	UpdateOne(ctx context.Context, filter interface{}, update interface{}, opts ...*options.UpdateOptions) (*mongo.UpdateResult, error)
	BulkWrite(ctx context.Context, models []mongo.WriteModel, opts ...*options.BulkWriteOptions) (*mongo.BulkWriteResult, error)
	DeleteOne(ctx context.Context, filter interface{}, opts ...*options.DeleteOptions) (*mongo.DeleteResult, error)
}

// session is the subset of mongo.Session used for scoped work.
type session interface {
	StartTransaction() error
	CommitTransaction(ctx context.Context) error
	AbortTransaction(ctx context.Context) error
	EndSession(ctx context.Context)
	// Bind returns a context that routes operations through the session.
	Bind(ctx context.Context) context.Context
}

type driverSession struct{ s mongo.Session }

func (d driverSession) StartTransaction() error                     { return d.s.StartTransaction() }
func (d driverSession) CommitTransaction(ctx context.Context) error { return d.s.CommitTransaction(ctx) }
func (d driverSession) AbortTransaction(ctx context.Context) error  { return d.s.AbortTransaction(ctx) }
func (d driverSession) EndSession(ctx context.Context)              { d.s.EndSession(ctx) }
func (d driverSession) Bind(ctx context.Context) context.Context {
	return mongo.NewSessionContext(ctx, d.s)
}

type mongoRecord struct {
	Key         string        `bson:"key"`
	Value       bson.RawValue `bson:"value"`
	ContentHash string        `bson:"contentHash"`
}

// MongoConfig configures the connection.
type MongoConfig struct {
	URI      string
	Database string
	Timeout  time.Duration
}

// MongoBackend stores each hashmap as a collection of
// {key, value, contentHash} records with a unique index on key.
//
// Transaction and Snapshot open a driver session and bind it to the context
// handed to fn. A context that already carries this backend's scope joins
// it, so nesting is safe at any depth.
type MongoBackend struct {
	client   *mongo.Client
	db       *mongo.Database
	coll     func(h Hashmap) collection
	startTx  func() (session, error)
	startSn  func() (session, error)
	topology func(ctx context.Context) (bool, error)
	logger   *slog.Logger

	topoMu     sync.Mutex
	topoKnown  bool
	snapshotOK bool

	closeMu sync.RWMutex
	closed  bool
}

// MongoOption configures a MongoBackend.
type MongoOption func(*MongoBackend)

// WithMongoLogger sets the logger.
func WithMongoLogger(l *slog.Logger) MongoOption {
	return func(b *MongoBackend) { b.logger = l }
}

// NewMongoBackend connects to MongoDB and verifies the connection.
func NewMongoBackend(ctx context.Context, cfg MongoConfig, opts ...MongoOption) (*MongoBackend, error) {
	if cfg.URI == "" {
		return nil, errors.New("mongodb connection string is empty")
	}
	if cfg.Database == "" {
		cfg.Database = DefaultMongoDatabase
	}
	if cfg.Timeout <= 0 {
		cfg.Timeout = 10 * time.Second
	}
	copts := options.Client().
		ApplyURI(cfg.URI).
		SetConnectTimeout(cfg.Timeout).
		SetServerSelectionTimeout(cfg.Timeout)
	client, err := mongo.Connect(ctx, copts)
	if err != nil {
		return nil, fmt.Errorf("connect to mongodb: %w", err)
	}
	if err := client.Ping(ctx, nil); err != nil {
		_ = client.Disconnect(context.WithoutCancel(ctx))
		return nil, fmt.Errorf("ping mongodb: %w", err)
	}

	db := client.Database(cfg.Database)
	b := &MongoBackend{
		client: client,
		db:     db,
		coll:   func(h Hashmap) collection { return db.Collection(string(h)) },
		startTx: func() (session, error) {
			s, err := client.StartSession()
			if err != nil {
				return nil, err
			}
			return driverSession{s}, nil
		},
		startSn: func() (session, error) {
			s, err := client.StartSession(options.Session().SetSnapshot(true))
			if err != nil {
				return nil, err
			}
			return driverSession{s}, nil
		},
		topology: func(ctx context.Context) (bool, error) {
			return probeSnapshotSupport(ctx, client)
		},
	}
	for _, opt := range opts {
		opt(b)
	}
	if b.logger == nil {
		b.logger = slog.Default()
	}
	return b, nil
}

// probeSnapshotSupport reports whether the deployment is a replica set or a
// sharded cluster. Snapshot sessions fail on standalone servers.
func probeSnapshotSupport(ctx context.Context, client *mongo.Client) (bool, error) {
	var hello struct {
		SetName string `bson:"setName"`
		Msg     string `bson:"msg"`
	}
	err := client.Database("admin").RunCommand(ctx, bson.D{{Key: "hello", Value: 1}}).Decode(&hello)
	if err != nil {
		return false, fmt.Errorf("probe topology: %w", err)
	}
	return hello.SetName != "" || hello.Msg == "isdbgrid", nil
}

// Name implements Backend.
func (b *MongoBackend) Name() string { return MongoBackendName }

// Provision creates any missing hashmap collection with a unique index on
// the key field. Existing collections are left untouched.
func (b *MongoBackend) Provision(ctx context.Context) error {
	if b.db == nil {
		return nil
	}
	names, err := b.db.ListCollectionNames(ctx, bson.D{})
	if err != nil {
		return fmt.Errorf("list collections: %w", err)
	}
	have := make(map[string]bool, len(names))
	for _, n := range names {
		have[n] = true
	}
	for _, h := range AllHashmaps() {
		if have[string(h)] {
			continue
		}
		if err := b.db.CreateCollection(ctx, string(h)); err != nil {
			return fmt.Errorf("create collection %s: %w", h, err)
		}
		_, err := b.db.Collection(string(h)).Indexes().CreateOne(ctx, mongo.IndexModel{
			Keys:    bson.D{{Key: fieldKey, Value: 1}},
			Options: options.Index().SetUnique(true),
		})
		if err != nil {
			return fmt.Errorf("index collection %s: %w", h, err)
		}
		b.logger.Info("storage.mongo.provision", "collection", string(h))
	}
	return nil
}

func (b *MongoBackend) isClosed() bool {
	b.closeMu.RLock()
	defer b.closeMu.RUnlock()
	return b.closed
}

func (b *MongoBackend) collection(h Hashmap) (collection, error) {
	if b.coll == nil || b.isClosed() {
		return nil, ErrClosed
	}
	if err := h.Validate(); err != nil {
		return nil, err
	}
	return b.coll(h), nil
}

func keyFilter(key string) bson.D {
	return bson.D{{Key: fieldKey, Value: key}}
}

func record(key, value string) (bson.D, error) {
	v, err := encodeValue(value)
	if err != nil {
		return nil, fmt.Errorf("encode %s: %w", key, err)
	}
	return bson.D{
		{Key: fieldKey, Value: key},
		{Key: fieldValue, Value: v},
		{Key: fieldHash, Value: codec.HashString(value)},
	}, nil
}

// Exists implements Backend.
func (b *MongoBackend) Exists(ctx context.Context, h Hashmap, key string) (bool, error) {
	c, err := b.collection(h)
	if err != nil {
		return false, err
	}
	n, err := c.CountDocuments(ctx, keyFilter(key))
	if err != nil {
		return false, fmt.Errorf("count %s/%s: %w", h, key, err)
	}
	return n > 0, nil
}

// SetIfAbsent implements Backend with a single upsert that only writes on
// insert.
func (b *MongoBackend) SetIfAbsent(ctx context.Context, h Hashmap, key, value string) (bool, error) {
	c, err := b.collection(h)
	if err != nil {
		return false, err
	}
	rec, err := record(key, value)
	if err != nil {
		return false, err
	}
	res, err := c.UpdateOne(ctx, keyFilter(key),
		bson.D{{Key: "$setOnInsert", Value: rec}},
		options.Update().SetUpsert(true))
	if err != nil {
		return false, fmt.Errorf("upsert %s/%s: %w", h, key, err)
	}
	return res.UpsertedCount == 1, nil
}

// Set implements Backend.
func (b *MongoBackend) Set(ctx context.Context, h Hashmap, key, value string) error {
	c, err := b.collection(h)
	if err != nil {
		return err
	}
	rec, err := record(key, value)
	if err != nil {
		return err
	}
	_, err = c.UpdateOne(ctx, keyFilter(key),
		bson.D{{Key: "$set", Value: rec}},
		options.Update().SetUpsert(true))
	if err != nil {
		return fmt.Errorf("update %s/%s: %w", h, key, err)
	}
	return nil
}

// MultiSet implements Backend with one unordered bulk write.
func (b *MongoBackend) MultiSet(ctx context.Context, h Hashmap, mapping map[string]string) error {
	c, err := b.collection(h)
	if err != nil {
		return err
	}
	if len(mapping) == 0 {
		return nil
	}
	models := make([]mongo.WriteModel, 0, len(mapping))
	for _, key := range sortedKeys(mapping) {
		rec, err := record(key, mapping[key])
		if err != nil {
			return err
		}
		models = append(models, mongo.NewUpdateOneModel().
			SetFilter(keyFilter(key)).
			SetUpdate(bson.D{{Key: "$set", Value: rec}}).
			SetUpsert(true))
	}
	if _, err := c.BulkWrite(ctx, models, options.BulkWrite().SetOrdered(false)); err != nil {
		return fmt.Errorf("bulk write %s: %w", h, err)
	}
	return nil
}

// Get implements Backend.
func (b *MongoBackend) Get(ctx context.Context, h Hashmap, key string) (string, error) {
	c, err := b.collection(h)
	if err != nil {
		return "", err
	}
	var rec mongoRecord
	err = c.FindOne(ctx, keyFilter(key)).Decode(&rec)
	if errors.Is(err, mongo.ErrNoDocuments) {
		return "", notFound(h, key)
	}
	if err != nil {
		return "", fmt.Errorf("find %s/%s: %w", h, key, err)
	}
	return decodeValue(rec.Value)
}

// MultiGet implements Backend with a single $in query.
func (b *MongoBackend) MultiGet(ctx context.Context, h Hashmap, keys []string) ([]string, error) {
	c, err := b.collection(h)
	if err != nil {
		return nil, err
	}
	if len(keys) == 0 {
		return []string{}, nil
	}
	filter := bson.D{{Key: fieldKey, Value: bson.D{{Key: "$in", Value: keys}}}}
	recs, err := b.find(ctx, c, filter, nil)
	if err != nil {
		return nil, fmt.Errorf("find %s: %w", h, err)
	}
	byKey := make(map[string]bson.RawValue, len(recs))
	for _, r := range recs {
		byKey[r.Key] = r.Value
	}
	out := make([]string, len(keys))
	for i, key := range keys {
		rv, ok := byKey[key]
		if !ok {
			return nil, notFound(h, key)
		}
		if out[i], err = decodeValue(rv); err != nil {
			return nil, fmt.Errorf("decode %s/%s: %w", h, key, err)
		}
	}
	return out, nil
}

// Delete implements Backend. Every key is attempted; failures are joined.
func (b *MongoBackend) Delete(ctx context.Context, h Hashmap, keys []string) error {
	c, err := b.collection(h)
	if err != nil {
		return err
	}
	var result *multierror.Error
	for _, key := range keys {
		if _, err := c.DeleteOne(ctx, keyFilter(key)); err != nil {
			result = multierror.Append(result, fmt.Errorf("delete %s/%s: %w", h, key, err))
		}
	}
	return result.ErrorOrNil()
}

// ListKeys implements Backend.
func (b *MongoBackend) ListKeys(ctx context.Context, h Hashmap) ([]string, error) {
	c, err := b.collection(h)
	if err != nil {
		return nil, err
	}
	recs, err := b.find(ctx, c, bson.D{}, bson.D{{Key: fieldKey, Value: 1}})
	if err != nil {
		return nil, fmt.Errorf("list %s: %w", h, err)
	}
	keys := make([]string, len(recs))
	for i, r := range recs {
		keys[i] = r.Key
	}
	sort.Strings(keys)
	return keys, nil
}

// GetAll implements Backend. With hashOnly only the stored content hashes
// are fetched.
func (b *MongoBackend) GetAll(ctx context.Context, h Hashmap, hashOnly bool) (map[string]string, error) {
	c, err := b.collection(h)
	if err != nil {
		return nil, err
	}
	var projection bson.D
	if hashOnly {
		projection = bson.D{{Key: fieldKey, Value: 1}, {Key: fieldHash, Value: 1}}
	}
	recs, err := b.find(ctx, c, bson.D{}, projection)
	if err != nil {
		return nil, fmt.Errorf("scan %s: %w", h, err)
	}
	out := make(map[string]string, len(recs))
	for _, r := range recs {
		if hashOnly {
			out[r.Key] = r.ContentHash
			continue
		}
		v, err := decodeValue(r.Value)
		if err != nil {
			return nil, fmt.Errorf("decode %s/%s: %w", h, r.Key, err)
		}
		out[r.Key] = v
	}
	return out, nil
}

func (b *MongoBackend) find(ctx context.Context, c collection, filter, projection bson.D) ([]mongoRecord, error) {
	var opts []*options.FindOptions
	if projection != nil {
		opts = append(opts, options.Find().SetProjection(projection))
	}
	cur, err := c.Find(ctx, filter, opts...)
	if err != nil {
		return nil, err
	}
	var recs []mongoRecord
	if err := cur.All(ctx, &recs); err != nil {
		return nil, err
	}
	return recs, nil
}

type scopeKind int

const (
	txScope scopeKind = iota
	snapshotScope
)

type scopeKey struct {
	backend *MongoBackend
	kind    scopeKind
}

// scope is the re-entrancy token carried by a context.
type scope struct {
	mu    sync.Mutex
	depth int
}

func (s *scope) enter() func() {
	s.mu.Lock()
	s.depth++
	s.mu.Unlock()
	return func() {
		s.mu.Lock()
		s.depth--
		s.mu.Unlock()
	}
}

// depth returns how many scopes of kind are active on ctx for this backend.
func (b *MongoBackend) depth(ctx context.Context, kind scopeKind) int {
	sc, ok := ctx.Value(scopeKey{b, kind}).(*scope)
	if !ok {
		return 0
	}
	sc.mu.Lock()
	defer sc.mu.Unlock()
	return sc.depth
}

// Transaction implements Backend. Only the outermost call commits or aborts.
func (b *MongoBackend) Transaction(ctx context.Context, fn func(ctx context.Context) error) (err error) {
	if sc, ok := ctx.Value(scopeKey{b, txScope}).(*scope); ok {
		defer sc.enter()()
		return fn(ctx)
	}
	if b.startTx == nil || b.isClosed() {
		return ErrClosed
	}
	sess, err := b.startTx()
	if err != nil {
		return fmt.Errorf("start session: %w", err)
	}
	defer sess.EndSession(context.WithoutCancel(ctx))
	if err := sess.StartTransaction(); err != nil {
		return fmt.Errorf("start transaction: %w", err)
	}

	sc := &scope{depth: 1}
	sctx := context.WithValue(sess.Bind(ctx), scopeKey{b, txScope}, sc)
	settled := false
	defer func() {
		if settled {
			return
		}
		if abortErr := sess.AbortTransaction(context.WithoutCancel(ctx)); abortErr != nil {
			b.logger.Warn("storage.mongo.transaction.abort_failed", "err", abortErr)
		}
	}()

	if err := fn(sctx); err != nil {
		return err
	}
	settled = true
	if err := sess.CommitTransaction(sctx); err != nil {
		return fmt.Errorf("commit transaction: %w", err)
	}
	return nil
}

// Snapshot implements Backend. On a standalone server fn runs without a
// session.
func (b *MongoBackend) Snapshot(ctx context.Context, fn func(ctx context.Context) error) error {
	if sc, ok := ctx.Value(scopeKey{b, snapshotScope}).(*scope); ok {
		defer sc.enter()()
		return fn(ctx)
	}
	if b.isClosed() {
		return ErrClosed
	}
	supported, err := b.snapshotSupported(ctx)
	if err != nil {
		return err
	}
	if !supported {
		b.logger.Debug("storage.mongo.snapshot.unsupported")
		return fn(ctx)
	}
	sess, err := b.startSn()
	if err != nil {
		return fmt.Errorf("start snapshot session: %w", err)
	}
	defer sess.EndSession(context.WithoutCancel(ctx))
	sctx := context.WithValue(sess.Bind(ctx), scopeKey{b, snapshotScope}, &scope{depth: 1})
	return fn(sctx)
}

func (b *MongoBackend) snapshotSupported(ctx context.Context) (bool, error) {
	b.topoMu.Lock()
	defer b.topoMu.Unlock()
	if b.topoKnown {
		return b.snapshotOK, nil
	}
	if b.topology == nil || b.startSn == nil {
		return false, nil
	}
	ok, err := b.topology(ctx)
	if err != nil {
		return false, err
	}
	b.topoKnown, b.snapshotOK = true, ok
	return ok, nil
}

// Close implements Backend. It may run concurrently with other calls,
// which fail with ErrClosed once it has started. Closing twice is a no-op.
func (b *MongoBackend) Close(ctx context.Context) error {
	b.closeMu.Lock()
	if b.closed {
		b.closeMu.Unlock()
		return nil
	}
	b.closed = true
	b.closeMu.Unlock()
	if b.client == nil {
		return nil
	}
	if err := b.client.Disconnect(ctx); err != nil {
		return fmt.Errorf("disconnect mongodb: %w", err)
	}
	return nil
}

var _ Backend = (*MongoBackend)(nil)
