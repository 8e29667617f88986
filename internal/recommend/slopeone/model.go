// Slopeone - Collaborative Filtering Rating Prediction Engine
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/slopeone

package slopeone

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"gonum.org/v1/gonum/mat"

	"github.com/tomtom215/slopeone/internal/metrics"
)

// CorrelationModel returns the average rating difference between two items.
type CorrelationModel interface {
	// Lookup returns M[itemI][itemJ]. An item outside the trained universe
	// yields a *ModelLookupError.
	Lookup(ctx context.Context, itemI, itemJ int) (float64, error)
}

// DenseModel is the fully materialized N×N difference matrix.
type DenseModel struct {
	index *ItemIndex
	m     *mat.Dense // nil when the universe is empty
}

// NewDenseModel allocates a zero matrix over index.
func NewDenseModel(index *ItemIndex) *DenseModel {
	d := &DenseModel{index: index}
	if n := index.Len(); n > 0 {
		d.m = mat.NewDense(n, n, nil)
	}
	return d
}

// Lookup implements CorrelationModel.
func (d *DenseModel) Lookup(_ context.Context, itemI, itemJ int) (float64, error) {
	i, ok := d.index.Index(itemI)
	if !ok {
		return 0, &ModelLookupError{ItemI: itemI, ItemJ: itemJ, Missing: itemI}
	}
	j, ok := d.index.Index(itemJ)
	if !ok {
		return 0, &ModelLookupError{ItemI: itemI, ItemJ: itemJ, Missing: itemJ}
	}
	return d.m.At(i, j), nil
}

// Index returns the model's item index.
func (d *DenseModel) Index() *ItemIndex {
	return d.index
}

// Len returns the universe size.
func (d *DenseModel) Len() int {
	return d.index.Len()
}

// Items returns the sorted universe.
func (d *DenseModel) Items() []int {
	return d.index.Items()
}

// Cells calls fn for every off-diagonal cell in row-major order and stops
// at the first error.
func (d *DenseModel) Cells(fn func(Cell) error) error {
	n := d.Len()
	for i := 0; i < n; i++ {
		row := d.m.RawRowView(i)
		itemI := d.index.ItemAt(i)
		for j, diff := range row {
			if j == i {
				continue
			}
			if err := fn(Cell{ItemI: itemI, ItemJ: d.index.ItemAt(j), Difference: diff}); err != nil {
				return err
			}
		}
	}
	return nil
}

// Row returns a copy of the differences from itemID to every item in index order.
func (d *DenseModel) Row(itemID int) ([]float64, bool) {
	i, ok := d.index.Index(itemID)
	if !ok {
		return nil, false
	}
	return mat.Row(nil, i, d.m), true
}

// At returns the cell at matrix indexes (i, j).
func (d *DenseModel) At(i, j int) float64 {
	return d.m.At(i, j)
}

// Equal reports whether both models have the same universe and identical cells.
func (d *DenseModel) Equal(o *DenseModel) bool {
	if d.Len() != o.Len() {
		return false
	}
	for i := 0; i < d.Len(); i++ {
		if d.index.ItemAt(i) != o.index.ItemAt(i) {
			return false
		}
	}
	if d.m == nil || o.m == nil {
		return d.m == nil && o.m == nil
	}
	return mat.Equal(d.m, o.m)
}

// rawRow exposes the backing storage of row i for the worker that owns it.
func (d *DenseModel) rawRow(i int) []float64 {
	return d.m.RawRowView(i)
}

// LookupPolicy selects what happens when a lookup names an unknown item.
type LookupPolicy int

const (
	// FailOnMissing surfaces the *ModelLookupError.
	FailOnMissing LookupPolicy = iota
	// ZeroOnMissing treats the difference as 0.
	ZeroOnMissing
)

func (p LookupPolicy) String() string {
	if p == ZeroOnMissing {
		return "zero"
	}
	return "fail"
}

// ParseLookupPolicy accepts "fail" (or "") and "zero".
func ParseLookupPolicy(s string) (LookupPolicy, error) {
	switch strings.ToLower(s) {
	case "", "fail":
		return FailOnMissing, nil
	case "zero":
		return ZeroOnMissing, nil
	default:
		return FailOnMissing, &ConfigurationError{
			Field:  "missing_pair_policy",
			Reason: fmt.Sprintf("unknown policy %q (want fail or zero)", s),
		}
	}
}

type policyModel struct {
	model  CorrelationModel
	policy LookupPolicy
}

// WithPolicy applies policy to every unknown-item lookup made through model.
// Errors other than *ModelLookupError pass through unchanged.
func WithPolicy(model CorrelationModel, policy LookupPolicy) CorrelationModel {
	if pm, ok := model.(*policyModel); ok {
		model = pm.model
	}
	return &policyModel{model: model, policy: policy}
}

func (p *policyModel) Lookup(ctx context.Context, itemI, itemJ int) (float64, error) {
	v, err := p.model.Lookup(ctx, itemI, itemJ)
	if err == nil {
		return v, nil
	}

	var lookupErr *ModelLookupError
	if !errors.As(err, &lookupErr) {
		return 0, err
	}
	metrics.RecordLookupMiss(p.policy.String())
	if p.policy == ZeroOnMissing {
		return 0, nil
	}
	return 0, err
}
