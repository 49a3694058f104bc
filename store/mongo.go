package store

import (
	"context"
	"errors"
	"fmt"

	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"

	"github.com/phillip/haojiu-go/logger"
	"github.com/phillip/haojiu-go/metrics"
)

// Mongo is the production Store. Transactions and change streams need
// the server to run as a replica set.
type Mongo struct {
	client *mongo.Client
	db     *mongo.Database
}

func NewMongo(client *mongo.Client, dbName string) *Mongo {
	return &Mongo{client: client, db: client.Database(dbName)}
}

func (s *Mongo) EnsureIndexes(ctx context.Context) error {
	_, err := s.db.Collection(Users).Indexes().CreateMany(ctx, []mongo.IndexModel{
		{
			Keys:    bson.D{{Key: "email", Value: 1}},
			Options: options.Index().SetUnique(true).SetName("users_email_unique"),
		},
	})
	if err != nil {
		return fmt.Errorf("users indexes: %w", err)
	}

	_, err = s.db.Collection(Events).Indexes().CreateMany(ctx, []mongo.IndexModel{
		{
			Keys:    bson.D{{Key: "event_timestamp", Value: 1}},
			Options: options.Index().SetName("events_timestamp"),
		},
	})
	if err != nil {
		return fmt.Errorf("events indexes: %w", err)
	}

	_, err = s.db.Collection(Messages).Indexes().CreateMany(ctx, []mongo.IndexModel{
		{
			Keys:    bson.D{{Key: "chat_id", Value: 1}, {Key: "timestamp", Value: 1}},
			Options: options.Index().SetName("messages_chat_time"),
		},
	})
	if err != nil {
		return fmt.Errorf("messages indexes: %w", err)
	}

	_, err = s.db.Collection(Notifications).Indexes().CreateMany(ctx, []mongo.IndexModel{
		{
			Keys:    bson.D{{Key: "recipient_id", Value: 1}, {Key: "created_at", Value: -1}},
			Options: options.Index().SetName("notifications_recipient"),
		},
	})
	if err != nil {
		return fmt.Errorf("notifications indexes: %w", err)
	}
	return nil
}

// Inside RunTransaction ctx is a mongo.SessionContext, so the same
// methods take part in the transaction.

func (s *Mongo) Get(ctx context.Context, coll, id string, out any) error {
	err := s.db.Collection(coll).FindOne(ctx, bson.M{"_id": id}).Decode(out)
	if errors.Is(err, mongo.ErrNoDocuments) {
		return fmt.Errorf("%s/%s: %w", coll, id, ErrNotFound)
	}
	if err != nil {
		return fmt.Errorf("get %s/%s: %w", coll, id, err)
	}
	return nil
}

func (s *Mongo) Set(ctx context.Context, coll, id string, doc any) error {
	_, err := s.db.Collection(coll).ReplaceOne(ctx, bson.M{"_id": id}, doc, options.Replace().SetUpsert(true))
	if err != nil {
		return fmt.Errorf("set %s/%s: %w", coll, id, err)
	}
	return nil
}

func (s *Mongo) Update(ctx context.Context, coll, id string, fields bson.M) error {
	res, err := s.db.Collection(coll).UpdateOne(ctx, bson.M{"_id": id}, bson.M{"$set": fields})
	if err != nil {
		return fmt.Errorf("update %s/%s: %w", coll, id, err)
	}
	if res.MatchedCount == 0 {
		return fmt.Errorf("%s/%s: %w", coll, id, ErrNotFound)
	}
	return nil
}

func (s *Mongo) Delete(ctx context.Context, coll, id string) error {
	res, err := s.db.Collection(coll).DeleteOne(ctx, bson.M{"_id": id})
	if err != nil {
		return fmt.Errorf("delete %s/%s: %w", coll, id, err)
	}
	if res.DeletedCount == 0 {
		return fmt.Errorf("%s/%s: %w", coll, id, ErrNotFound)
	}
	return nil
}

func (s *Mongo) Find(ctx context.Context, coll string, q Query, out any) error {
	filter := bson.D{}
	for _, c := range q.Where {
		filter = append(filter, bson.E{Key: c.Field, Value: c.Value})
	}
	opts := options.Find()
	if q.OrderBy != "" {
		dir := 1
		if q.Desc {
			dir = -1
		}
		opts.SetSort(bson.D{{Key: q.OrderBy, Value: dir}})
	}
	if q.Limit > 0 {
		opts.SetLimit(int64(q.Limit))
	}

	cursor, err := s.db.Collection(coll).Find(ctx, filter, opts)
	if err != nil {
		return fmt.Errorf("find %s: %w", coll, err)
	}
	if err := cursor.All(ctx, out); err != nil {
		return fmt.Errorf("decode %s: %w", coll, err)
	}
	return nil
}

func (s *Mongo) RunTransaction(ctx context.Context, fn func(ctx context.Context, tx Tx) error) error {
	sess, err := s.client.StartSession()
	if err != nil {
		return fmt.Errorf("start session: %w", err)
	}
	defer sess.EndSession(ctx)

	attempt := 0
	_, err = sess.WithTransaction(ctx, func(sc mongo.SessionContext) (interface{}, error) {
		if attempt > 0 {
			metrics.StoreTxRetries.Inc()
		}
		attempt++
		return nil, fn(sc, s)
	})
	if err != nil {
		var srvErr mongo.ServerError
		if errors.As(err, &srvErr) && srvErr.HasErrorLabel("TransientTransactionError") {
			return fmt.Errorf("%w: %v", ErrConflict, err)
		}
		return err
	}
	return nil
}

func (s *Mongo) Batch(ctx context.Context, ops ...Op) error {
	return s.RunTransaction(ctx, func(ctx context.Context, tx Tx) error {
		for _, op := range ops {
			if err := applyOp(ctx, tx, op); err != nil {
				return err
			}
		}
		return nil
	})
}

type changeEvent struct {
	OperationType string `bson:"operationType"`
	DocumentKey   struct {
		ID string `bson:"_id"`
	} `bson:"documentKey"`
	FullDocument bson.Raw `bson:"fullDocument"`
}

func (s *Mongo) Subscribe(ctx context.Context, coll string, fn func(Change)) (func(), error) {
	ctx, cancel := context.WithCancel(ctx)
	opts := options.ChangeStream().SetFullDocument(options.UpdateLookup)
	cs, err := s.db.Collection(coll).Watch(ctx, mongo.Pipeline{}, opts)
	if err != nil {
		cancel()
		return nil, fmt.Errorf("watch %s: %w", coll, err)
	}

	go func() {
		defer cs.Close(context.Background())
		for cs.Next(ctx) {
			var ev changeEvent
			if err := cs.Decode(&ev); err != nil {
				logger.Warn.Printf("[store] decode change on %s: %v", coll, err)
				continue
			}
			c := Change{Collection: coll, ID: ev.DocumentKey.ID, Op: OpPut, Doc: ev.FullDocument}
			switch ev.OperationType {
			case "delete":
				c.Op, c.Doc = OpDelete, nil
			case "insert", "replace", "update":
			default:
				continue
			}
			fn(c)
		}
		if err := cs.Err(); err != nil && ctx.Err() == nil {
			logger.Error.Printf("[store] change stream on %s stopped: %v", coll, err)
		}
	}()

	return cancel, nil
}
