package finance

// ValueLattice 是回溯得到的合约价值树，形状与有效区域同价格树一致。
// 第 M 列为到期收益，(0, 0) 为合约现值。
type ValueLattice struct {
	steps  int
	values []float64
}

// At 返回节点 (i, j) 的合约价值；上三角区域返回 0。
func (v *ValueLattice) At(i, j int) float64 {
	if j < 0 || j > v.steps || i < 0 || i > j {
		return 0
	}
	return v.values[triangular(j)+i]
}

// Steps 返回步数 M。
func (v *ValueLattice) Steps() int { return v.steps }

// Dense 以方阵形式导出价值树。
func (v *ValueLattice) Dense() [][]float64 {
	return denseFrom(v.steps, v.At)
}

// ExerciseRecord 记录每个内部节点（第 0..M-1 列）是否选择了提前行权。
// 仅作为回溯的副产品输出，不参与后续计算。
type ExerciseRecord struct {
	steps     int
	exercised []bool
}

// At 返回节点 (i, j) 是否提前行权；到期列与上三角区域返回 false。
func (r *ExerciseRecord) At(i, j int) bool {
	if j < 0 || j >= r.steps || i < 0 || i > j {
		return false
	}
	return r.exercised[triangular(j)+i]
}

// Count 返回提前行权的节点数。
func (r *ExerciseRecord) Count() int {
	n := 0
	for _, ex := range r.exercised {
		if ex {
			n++
		}
	}
	return n
}

// Boundary 返回每一列中选择提前行权的最浅节点下标（下跌次数），没有则为 -1。
// 对看跌期权而言这就是离散化的最优行权边界。
func (r *ExerciseRecord) Boundary() []int {
	out := make([]int, r.steps)
	for j := range r.steps {
		out[j] = -1
		for i := 0; i <= j; i++ {
			if r.At(i, j) {
				out[j] = i
				break
			}
		}
	}
	return out
}

// Rollout 回溯结果。
type Rollout struct {
	Values   *ValueLattice
	Exercise *ExerciseRecord // 未请求记录时为 nil
}

// Price 返回合约现值 value[0, 0]。
func (r *Rollout) Price() float64 {
	return r.Values.values[0]
}

type rollbackOptions struct {
	recordExercise bool
}

// RollbackOption 回溯选项。
type RollbackOption func(*rollbackOptions)

// WithExerciseRecord 同时输出提前行权记录。
func WithExerciseRecord() RollbackOption {
	return func(o *rollbackOptions) {
		o.recordExercise = true
	}
}

// Rollback 在价格树上做逆向归纳。
//
// 到期列取 payoff(price[i, M])；随后从 j = M-1 到 0，每个节点先计算
// continuation = discount * (p_u*v[i, j+1] + p_d*v[i+1, j+1])，
// 再交给 policy 在立即行权价值 payoff(price[i, j]) 与 continuation 之间决策。
// 欧式与美式共用这一个循环，区别只在注入的 policy。
//
// 输入中的 NaN 会沿回溯传播到结果中，不会报错。
func Rollback(l *Lattice, payoff Payoff, policy ExercisePolicy, opts ...RollbackOption) *Rollout {
	var o rollbackOptions
	for _, opt := range opts {
		opt(&o)
	}

	m := l.params.Steps
	values := make([]float64, len(l.prices))

	terminal := values[triangular(m) : triangular(m)+m+1]
	for i, s := range l.column(m) {
		terminal[i] = payoff(s)
	}

	var record *ExerciseRecord
	if o.recordExercise {
		record = &ExerciseRecord{steps: m, exercised: make([]bool, triangular(m))}
	}

	disc, pu, pd := l.discount, l.pu, l.pd
	for j := m - 1; j >= 0; j-- {
		start, next := triangular(j), triangular(j+1)
		prices := l.prices[start : start+j+1]
		cur := values[start : start+j+1]
		later := values[next : next+j+2]
		for i, s := range prices {
			continuation := disc * (pu*later[i] + pd*later[i+1])
			v, exercised := policy(payoff(s), continuation)
			cur[i] = v
			if record != nil {
				record.exercised[start+i] = exercised
			}
		}
	}

	return &Rollout{
		Values:   &ValueLattice{steps: m, values: values},
		Exercise: record,
	}
}
