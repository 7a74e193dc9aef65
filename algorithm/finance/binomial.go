package finance

// BinomialPricer 组合价格树、回溯与标准收益函数，给出欧式/美式看涨、看跌价格。
type BinomialPricer struct {
	params MarketParameters
	strict bool
}

// BinomialOption 定价器选项。
type BinomialOption func(*BinomialPricer)

// WithStrictProbabilities 在风险中性概率越界时返回 ErrProbabilityOutOfRange，
// 默认不检查（结果数值上有定义但经济含义无效）。
func WithStrictProbabilities() BinomialOption {
	return func(b *BinomialPricer) {
		b.strict = true
	}
}

// NewBinomialPricer 创建二叉树定价器，参数须已通过 NewMarketParameters 校验。
func NewBinomialPricer(p MarketParameters, opts ...BinomialOption) *BinomialPricer {
	b := &BinomialPricer{params: p}
	for _, opt := range opts {
		opt(b)
	}
	return b
}

// Params 返回市场参数。
func (b *BinomialPricer) Params() MarketParameters { return b.params }

// Lattice 构建价格树，严格模式下校验概率。
func (b *BinomialPricer) Lattice() (*Lattice, error) {
	l := BuildLattice(b.params)
	if b.strict {
		if err := l.CheckProbabilities(); err != nil {
			return nil, err
		}
	}
	return l, nil
}

// Value 对任意收益函数定价。
func (b *BinomialPricer) Value(payoff Payoff, style ExerciseStyle) (float64, error) {
	r, err := b.rollout(payoff, style)
	if err != nil {
		return 0, err
	}
	return r.Price(), nil
}

// Price 对标准看涨/看跌期权定价。
func (b *BinomialPricer) Price(optionType OptionType, style ExerciseStyle) (float64, error) {
	payoff, err := optionType.Payoff(b.params.Strike)
	if err != nil {
		return 0, err
	}
	return b.Value(payoff, style)
}

// CallPrice 看涨期权价格。
func (b *BinomialPricer) CallPrice(style ExerciseStyle) (float64, error) {
	return b.Price(OptionTypeCall, style)
}

// PutPrice 看跌期权价格。
func (b *BinomialPricer) PutPrice(style ExerciseStyle) (float64, error) {
	return b.Price(OptionTypePut, style)
}

// Rollout 返回完整的价值树与提前行权记录，用于检查行权边界。
func (b *BinomialPricer) Rollout(optionType OptionType, style ExerciseStyle) (*Rollout, error) {
	payoff, err := optionType.Payoff(b.params.Strike)
	if err != nil {
		return nil, err
	}
	return b.rollout(payoff, style, WithExerciseRecord())
}

// EarlyExercisePremium 美式价格减去欧式价格。
func (b *BinomialPricer) EarlyExercisePremium(optionType OptionType) (float64, error) {
	american, err := b.Price(optionType, ExerciseAmerican)
	if err != nil {
		return 0, err
	}
	european, err := b.Price(optionType, ExerciseEuropean)
	if err != nil {
		return 0, err
	}
	return american - european, nil
}

func (b *BinomialPricer) rollout(payoff Payoff, style ExerciseStyle, opts ...RollbackOption) (*Rollout, error) {
	policy, err := style.Policy()
	if err != nil {
		return nil, err
	}
	l, err := b.Lattice()
	if err != nil {
		return nil, err
	}
	return Rollback(l, payoff, policy, opts...), nil
}
