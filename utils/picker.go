package utils

import (
	"github.com/rs/zerolog/log"
)

type pickerItem[T any] struct {
	Weight uint
	Item   T
}

// Picker chooses items with probability proportional to their weight.
type Picker[T any] struct {
	Choices []pickerItem[T]
	total   uint
}

func (picker *Picker[T]) Add(weight uint, item T) {
	if weight == 0 {
		return
	}

	picker.Choices = append(picker.Choices, pickerItem[T]{Weight: weight, Item: item})
	picker.total += weight
}

// Choose rolls with roll(n), which must return a value in [0, n). The
// second result is false when nothing has weight.
func (picker *Picker[T]) Choose(roll func(n int) int) (T, bool) {
	var zero T
	if picker.total == 0 {
		log.Warn().Msg("Picker choices have no weight")
		return zero, false
	}

	choice := uint(roll(int(picker.total)))
	for _, i := range picker.Choices {
		if choice < i.Weight {
			return i.Item, true
		}

		choice -= i.Weight
	}

	log.Warn().Uint("choice", choice).Msg("Picker failed")
	return zero, false
}
