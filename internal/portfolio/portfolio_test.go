package portfolio

import (
	"context"
	"fmt"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/gitrdm/gotimetable/pkg/timetabling"
)

// twoTaskFactory builds a fresh unit-capacity model per worker: two tasks of
// size 2 whose makespan has a known optimum of 4.
func twoTaskFactory() Factory {
	return func(worker int) (*timetabling.Search, timetabling.AffineExpr, error) {
		m := timetabling.NewModel()
		a := m.NewInterval(0, 8, 2)
		b := m.NewInterval(0, 8, 2)
		_, err := m.AddCumulative(
			[]timetabling.Interval{a, b},
			[]timetabling.AffineExpr{timetabling.ConstantExpr(1), timetabling.ConstantExpr(1)},
			timetabling.ConstantExpr(1),
		)
		if err != nil {
			return nil, timetabling.AffineExpr{}, err
		}
		makespan := m.NewVariable(0, 12)
		m.AddPrecedence(a.End, makespan, 0)
		m.AddPrecedence(b.End, makespan, 0)
		return timetabling.NewSearch(m), makespan, nil
	}
}

func TestPool_MinimizeFirstWorkerWins(t *testing.T) {
	pool := NewPool(4)
	res, err := pool.Minimize(context.Background(), twoTaskFactory())
	require.NoError(t, err)
	require.NotNil(t, res)
	require.Equal(t, timetabling.IntegerValue(4), res.Objective)
	require.Len(t, res.Solution, 2)
}

func TestPool_MinimizeInfeasible(t *testing.T) {
	factory := func(worker int) (*timetabling.Search, timetabling.AffineExpr, error) {
		m := timetabling.NewModel()
		a := m.NewInterval(0, 0, 2)
		b := m.NewInterval(0, 0, 2)
		_, err := m.AddCumulative(
			[]timetabling.Interval{a, b},
			[]timetabling.AffineExpr{timetabling.ConstantExpr(1), timetabling.ConstantExpr(1)},
			timetabling.ConstantExpr(1),
		)
		if err != nil {
			return nil, timetabling.AffineExpr{}, err
		}
		return timetabling.NewSearch(m), m.NewVariable(0, 4), nil
	}

	pool := NewPool(2)
	res, err := pool.Minimize(context.Background(), factory)
	require.NoError(t, err)
	require.Nil(t, res)
}

func TestPool_FactoryErrorPropagates(t *testing.T) {
	factory := func(worker int) (*timetabling.Search, timetabling.AffineExpr, error) {
		return nil, timetabling.AffineExpr{}, fmt.Errorf("broken model")
	}

	pool := NewPool(2)
	res, err := pool.Minimize(context.Background(), factory)
	require.Error(t, err)
	require.Nil(t, res)
}

func TestNewPool_DefaultsWorkerCount(t *testing.T) {
	require.Greater(t, NewPool(0).workers, 0)
	require.Equal(t, 3, NewPool(3).workers)
}
