package store

import (
	"encoding/json"
	"fmt"

	"github.com/lucasvieira/soletra/internal/landmark"
)

// Landmarks travel through both backends as a JSON array column so the
// schema stays portable between SQLite and PostgreSQL.

func marshalLandmarks(points []landmark.Point) (string, error) {
	data, err := json.Marshal(points)
	if err != nil {
		return "", fmt.Errorf("marshal landmarks: %w", err)
	}
	return string(data), nil
}

func unmarshalLandmarks(data string) ([]landmark.Point, error) {
	var points []landmark.Point
	if err := json.Unmarshal([]byte(data), &points); err != nil {
		return nil, fmt.Errorf("unmarshal landmarks: %w", err)
	}
	return points, nil
}
