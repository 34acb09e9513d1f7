package board

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestPositioned(t *testing.T) {
	positioned := []ObjectType{TypeSticky, TypeRectangle, TypeCircle, TypeLine, TypeTextbox}
	for _, typ := range positioned {
		assert.True(t, Object{Type: typ}.Positioned(), string(typ))
	}
	assert.False(t, Object{Type: TypeConnector}.Positioned())
	assert.False(t, Object{Type: TypeDrawing}.Positioned())
}

func TestCloneDeepCopiesPoints(t *testing.T) {
	orig := Object{
		ID:     "d1",
		Type:   TypeDrawing,
		Points: []Point{{X: 1, Y: 2}, {X: 3, Y: 4}},
	}
	dup := orig.Clone()
	dup.Points[0].X = 99

	assert.Equal(t, 1.0, orig.Points[0].X, "clone must not alias the stroke")
}
