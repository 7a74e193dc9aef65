package finance

import (
	"strings"

	"github.com/wyfcoding/valuation/xerrors"
)

// ExerciseStyle 行权方式。
type ExerciseStyle string

const (
	ExerciseEuropean ExerciseStyle = "european"
	ExerciseAmerican ExerciseStyle = "american"
)

// ParseExerciseStyle 解析行权方式（大小写不敏感）。
func ParseExerciseStyle(s string) (ExerciseStyle, error) {
	switch style := ExerciseStyle(strings.ToLower(strings.TrimSpace(s))); style {
	case ExerciseEuropean, ExerciseAmerican:
		return style, nil
	default:
		return "", xerrors.ErrInvalidExerciseStyle.Clone().WithContext("style", s)
	}
}

// ExercisePolicy 是回溯时在每个内部节点调用的决策函数。
// intrinsic 为该节点立即行权价值，continuation 为贴现后的期望持有价值；
// 返回节点价值以及是否选择了提前行权。
type ExercisePolicy func(intrinsic, continuation float64) (value float64, exercised bool)

// European 从不提前行权，到期日是唯一的行权机会。
func European(_, continuation float64) (float64, bool) {
	return continuation, false
}

// American 在立即行权价值严格大于持有价值时提前行权。
func American(intrinsic, continuation float64) (float64, bool) {
	if intrinsic > continuation {
		return intrinsic, true
	}
	return continuation, false
}

// Policy 返回行权方式对应的决策函数。
func (s ExerciseStyle) Policy() (ExercisePolicy, error) {
	switch s {
	case ExerciseEuropean:
		return European, nil
	case ExerciseAmerican:
		return American, nil
	default:
		return nil, xerrors.ErrInvalidExerciseStyle.Clone().WithContext("style", string(s))
	}
}
