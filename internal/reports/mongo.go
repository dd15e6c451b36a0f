package reports

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"

	"github.com/echocoach/echo/internal/coach"
	"github.com/echocoach/echo/internal/mongostore"
)

const reportsCollection = "reports"

type fillerDoc struct {
	Word  string `bson:"word"`
	Count int    `bson:"count"`
}

type metricsDoc struct {
	Pace         int             `bson:"pace"`
	FillerWords  []fillerDoc     `bson:"filler_words"`
	EyeContact   int             `bson:"eye_contact"`
	Sentiment    coach.Sentiment `bson:"sentiment"`
	PaceScore    int             `bson:"pace_score"`
	FillerScore  int             `bson:"filler_score"`
	TotalFillers int             `bson:"total_fillers"`
}

type reportDoc struct {
	ID           string     `bson:"_id"`
	UserID       string     `bson:"user_id"`
	SessionDate  time.Time  `bson:"session_date"`
	Duration     int        `bson:"duration"`
	WordCount    int        `bson:"word_count"`
	OverallScore int        `bson:"overall_score"`
	Metrics      metricsDoc `bson:"metrics"`
	Transcript   string     `bson:"transcript"`
	Strengths    []string   `bson:"strengths"`
	Improvements []string   `bson:"improvements"`
	CreatedAt    time.Time  `bson:"created_at"`
}

// MongoStore persists reports in a MongoDB collection.
type MongoStore struct {
	conn *mongostore.Conn
	coll *mongo.Collection
}

func NewMongoStore(ctx context.Context, uri string) (*MongoStore, error) {
	conn, err := mongostore.Connect(ctx, uri)
	if err != nil {
		return nil, err
	}
	coll := conn.Collection(reportsCollection)
	_, err = coll.Indexes().CreateOne(ctx, mongo.IndexModel{
		Keys: bson.D{{Key: "user_id", Value: 1}, {Key: "session_date", Value: -1}},
	})
	if err != nil {
		_ = conn.Close(context.Background())
		return nil, fmt.Errorf("create reports index: %w", err)
	}
	return &MongoStore{conn: conn, coll: coll}, nil
}

func (s *MongoStore) Create(ctx context.Context, report Report) (Report, error) {
	report = prepare(report, uuid.NewString, time.Now().UTC())
	if _, err := s.coll.InsertOne(ctx, toDoc(report)); err != nil {
		return Report{}, fmt.Errorf("insert report: %w", err)
	}
	return report, nil
}

func (s *MongoStore) List(ctx context.Context, userID string, page, limit int) (ListResult, error) {
	page, limit = NormalizePage(page, limit)
	filter := bson.M{"user_id": userID}

	total, err := s.coll.CountDocuments(ctx, filter)
	if err != nil {
		return ListResult{}, fmt.Errorf("count reports: %w", err)
	}

	opts := options.Find().
		SetSort(bson.D{{Key: "session_date", Value: -1}, {Key: "_id", Value: 1}}).
		SetSkip(int64((page - 1) * limit)).
		SetLimit(int64(limit))
	cur, err := s.coll.Find(ctx, filter, opts)
	if err != nil {
		return ListResult{}, fmt.Errorf("query reports: %w", err)
	}
	var docs []reportDoc
	if err := cur.All(ctx, &docs); err != nil {
		return ListResult{}, fmt.Errorf("decode reports: %w", err)
	}

	out := ListResult{Reports: make([]Report, 0, len(docs)), Pagination: newPagination(page, limit, int(total))}
	for _, d := range docs {
		out.Reports = append(out.Reports, fromDoc(d))
	}
	return out, nil
}

func (s *MongoStore) Get(ctx context.Context, userID, id string) (Report, error) {
	var doc reportDoc
	err := s.coll.FindOne(ctx, bson.M{"_id": id, "user_id": userID}).Decode(&doc)
	if errors.Is(err, mongo.ErrNoDocuments) {
		return Report{}, ErrNotFound
	}
	if err != nil {
		return Report{}, fmt.Errorf("find report: %w", err)
	}
	return fromDoc(doc), nil
}

func (s *MongoStore) Delete(ctx context.Context, userID, id string) error {
	res, err := s.coll.DeleteOne(ctx, bson.M{"_id": id, "user_id": userID})
	if err != nil {
		return fmt.Errorf("delete report: %w", err)
	}
	if res.DeletedCount == 0 {
		return ErrNotFound
	}
	return nil
}

func (s *MongoStore) Stats(ctx context.Context, userID string) (Stats, error) {
	pipeline := mongo.Pipeline{
		{{Key: "$match", Value: bson.M{"user_id": userID}}},
		{{Key: "$group", Value: bson.M{
			"_id":           nil,
			"totalSessions": bson.M{"$sum": 1},
			"totalDuration": bson.M{"$sum": "$duration"},
			"avgScore":      bson.M{"$avg": "$overall_score"},
			"avgPace":       bson.M{"$avg": "$metrics.pace"},
			"avgEyeContact": bson.M{"$avg": "$metrics.eye_contact"},
		}}},
	}
	cur, err := s.coll.Aggregate(ctx, pipeline)
	if err != nil {
		return Stats{}, fmt.Errorf("aggregate reports: %w", err)
	}
	var rows []struct {
		TotalSessions int64   `bson:"totalSessions"`
		TotalDuration int64   `bson:"totalDuration"`
		AvgScore      float64 `bson:"avgScore"`
		AvgPace       float64 `bson:"avgPace"`
		AvgEyeContact float64 `bson:"avgEyeContact"`
	}
	if err := cur.All(ctx, &rows); err != nil {
		return Stats{}, fmt.Errorf("decode report stats: %w", err)
	}
	if len(rows) == 0 {
		return Stats{}, nil
	}
	r := rows[0]
	return Stats{
		TotalSessions: int(r.TotalSessions),
		TotalDuration: int(r.TotalDuration),
		AvgScore:      round2(r.AvgScore),
		AvgPace:       round2(r.AvgPace),
		AvgEyeContact: round2(r.AvgEyeContact),
	}, nil
}

func (s *MongoStore) Mode() string { return "mongo" }

func (s *MongoStore) Close() error {
	return s.conn.Close(context.Background())
}

func toDoc(r Report) reportDoc {
	fillers := make([]fillerDoc, 0, len(r.Metrics.FillerWords))
	for _, f := range r.Metrics.FillerWords {
		fillers = append(fillers, fillerDoc{Word: f.Word, Count: f.Count})
	}
	return reportDoc{
		ID:           r.ID,
		UserID:       r.UserID,
		SessionDate:  r.Date,
		Duration:     r.Duration,
		WordCount:    r.WordCount,
		OverallScore: r.OverallScore,
		Metrics: metricsDoc{
			Pace:         r.Metrics.Pace,
			FillerWords:  fillers,
			EyeContact:   r.Metrics.EyeContact,
			Sentiment:    r.Metrics.Sentiment,
			PaceScore:    r.Metrics.PaceScore,
			FillerScore:  r.Metrics.FillerScore,
			TotalFillers: r.Metrics.TotalFillers,
		},
		Transcript:   r.Transcript,
		Strengths:    nonNil(r.Strengths),
		Improvements: nonNil(r.Improvements),
		CreatedAt:    r.CreatedAt,
	}
}

func fromDoc(d reportDoc) Report {
	fillers := make([]coach.FillerWord, 0, len(d.Metrics.FillerWords))
	for _, f := range d.Metrics.FillerWords {
		fillers = append(fillers, coach.FillerWord{Word: f.Word, Count: f.Count})
	}
	return Report{
		SessionRecord: coach.SessionRecord{
			ID:           d.ID,
			Date:         d.SessionDate.UTC(),
			Duration:     d.Duration,
			WordCount:    d.WordCount,
			OverallScore: d.OverallScore,
			Metrics: coach.RecordMetrics{
				Pace:         d.Metrics.Pace,
				FillerWords:  fillers,
				EyeContact:   d.Metrics.EyeContact,
				Sentiment:    d.Metrics.Sentiment,
				PaceScore:    d.Metrics.PaceScore,
				FillerScore:  d.Metrics.FillerScore,
				TotalFillers: d.Metrics.TotalFillers,
			},
			Transcript:   d.Transcript,
			Strengths:    d.Strengths,
			Improvements: d.Improvements,
		},
		UserID:    d.UserID,
		CreatedAt: d.CreatedAt.UTC(),
	}
}
