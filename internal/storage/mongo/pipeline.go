package mongo

import (
	"time"

	"go.mongodb.org/mongo-driver/bson"
	mongodrv "go.mongodb.org/mongo-driver/mongo"

	"vapi/internal/storage"
)

const (
	timeField = "datetime"
	dayFormat = "%Y-%m-%d"
)

var newestFirst = bson.D{{Key: timeField, Value: -1}, {Key: "_id", Value: -1}}

// LatestPipeline selects the single most recent document.
func LatestPipeline() mongodrv.Pipeline {
	return mongodrv.Pipeline{
		{{Key: "$sort", Value: newestFirst}},
		{{Key: "$limit", Value: 1}},
	}
}

// LatestPerGroupPipeline reduces each group to its most recent document,
// ordered by group.
func LatestPerGroupPipeline(groupField string, filter storage.GroupFilter) mongodrv.Pipeline {
	pipeline := mongodrv.Pipeline{}
	if match := groupMatch(groupField, filter); len(match) > 0 {
		pipeline = append(pipeline, bson.D{{Key: "$match", Value: match}})
	}
	return append(pipeline,
		bson.D{{Key: "$sort", Value: newestFirst}},
		bson.D{{Key: "$group", Value: bson.D{
			{Key: "_id", Value: "$" + groupField},
			{Key: "doc", Value: bson.D{{Key: "$first", Value: "$$ROOT"}}},
		}}},
		bson.D{{Key: "$replaceRoot", Value: bson.D{{Key: "newRoot", Value: "$doc"}}}},
		bson.D{{Key: "$sort", Value: bson.D{{Key: groupField, Value: 1}}}},
	)
}

// LatestPerDayPipeline keeps the last document of each calendar day in
// [from, to), per group when groupField is set, ordered ascending by day.
func LatestPerDayPipeline(groupField string, from, to time.Time, loc *time.Location) mongodrv.Pipeline {
	if loc == nil {
		loc = time.UTC
	}
	key := bson.D{{Key: "day", Value: bson.D{{Key: "$dateToString", Value: bson.D{
		{Key: "format", Value: dayFormat},
		{Key: "date", Value: "$" + timeField},
		{Key: "timezone", Value: loc.String()},
	}}}}}
	order := bson.D{{Key: "_id.day", Value: 1}}
	if groupField != "" {
		key = append(key, bson.E{Key: "group", Value: "$" + groupField})
		order = append(order, bson.E{Key: "_id.group", Value: 1})
	}

	return mongodrv.Pipeline{
		{{Key: "$match", Value: bson.D{{Key: timeField, Value: bson.D{
			{Key: "$gte", Value: from},
			{Key: "$lt", Value: to},
		}}}}},
		{{Key: "$sort", Value: bson.D{{Key: timeField, Value: 1}, {Key: "_id", Value: 1}}}},
		{{Key: "$group", Value: bson.D{
			{Key: "_id", Value: key},
			{Key: "doc", Value: bson.D{{Key: "$last", Value: "$$ROOT"}}},
		}}},
		{{Key: "$sort", Value: order}},
		{{Key: "$replaceRoot", Value: bson.D{{Key: "newRoot", Value: "$doc"}}}},
	}
}

func groupMatch(groupField string, filter storage.GroupFilter) bson.D {
	match := bson.D{}
	if filter.Group != "" {
		match = append(match, bson.E{Key: groupField, Value: filter.Group})
	}
	bounds := bson.D{}
	if !filter.From.IsZero() {
		bounds = append(bounds, bson.E{Key: "$gte", Value: filter.From})
	}
	if !filter.To.IsZero() {
		bounds = append(bounds, bson.E{Key: "$lt", Value: filter.To})
	}
	if len(bounds) > 0 {
		match = append(match, bson.E{Key: timeField, Value: bounds})
	}
	return match
}
