package xerrors

var (
	// ErrInvalidSpotStrike 标的价格或行权价为负。
	ErrInvalidSpotStrike = New(ErrInvalidArg, 400101, "expected inputs S, K to be greater than or equal to 0", "spot and strike must be non-negative", nil)
	// ErrInvalidPositive 到期时间、波动率或无风险利率不为正。
	ErrInvalidPositive = New(ErrInvalidArg, 400102, "expected inputs T, sigma, rfr to be greater than 0", "expiry, volatility and risk-free rate must be strictly positive", nil)
	// ErrInvalidDividend 股息收益率为负。
	ErrInvalidDividend = New(ErrInvalidArg, 400103, "expected input q to be greater than or equal to 0", "continuous dividend yield must be non-negative", nil)
	// ErrInvalidSteps 步数不是正整数。
	ErrInvalidSteps = New(ErrInvalidArg, 400104, "step count M must be a positive integer", "lattice requires at least one step", nil)
	// ErrFractionalSteps 步数带小数部分。
	ErrFractionalSteps = New(ErrInvalidArg, 400105, "step count M must be an integer", "truncating M would silently change the time step", nil)
	// ErrNotFinite 输入为 NaN 或无穷大。
	ErrNotFinite = New(ErrInvalidArg, 400106, "expected finite inputs", "NaN or Inf passed as market parameter", nil)
	// ErrDimMismatch 维度不匹配.
	ErrDimMismatch = New(ErrInvalidArg, 400107, "all non-scalar inputs must have the same dimensions", "vector inputs must share one length or be scalar", nil)
	// ErrInvalidOptionType 无效的期权类型。
	ErrInvalidOptionType = New(ErrInvalidArg, 400108, "invalid option type", "supported types: call, put", nil)
	// ErrInvalidExerciseStyle 无效的行权方式。
	ErrInvalidExerciseStyle = New(ErrInvalidArg, 400109, "invalid exercise style", "supported styles: european, american", nil)
	// ErrInvalidGrid 模拟时间网格非法。
	ErrInvalidGrid = New(ErrInvalidArg, 400110, "expected time grid to be non-empty, non-negative and non-decreasing", "check simulation grid", nil)
	// ErrInvalidPaths 模拟路径数非法。
	ErrInvalidPaths = New(ErrInvalidArg, 400111, "expected number of paths to be at least 1", "check simulation path count", nil)
	// ErrInvalidMethod 未知定价方法。
	ErrInvalidMethod = New(ErrInvalidArg, 400112, "invalid pricing method", "supported methods: analytic, binomial, montecarlo", nil)
	// ErrInvalidModel 未知 DLOM 模型。
	ErrInvalidModel = New(ErrInvalidArg, 400113, "invalid discount model", "supported models: chaffe, differential_put, finnerty, ghaidarov", nil)
	// ErrInvalidPayoff 收益表达式无法编译或不返回数值。
	ErrInvalidPayoff = New(ErrInvalidArg, 400114, "invalid payoff expression", "use variables S and K, e.g. max(S - K, 0)", nil)
	// ErrProbabilityOutOfRange 风险中性概率越界，步长相对波动率过粗。
	ErrProbabilityOutOfRange = New(ErrNumerical, 422101, "risk-neutral probability outside [0, 1]", "increase step count or check rate/volatility inputs", nil)
	// ErrNonFiniteResult 计算结果为 NaN 或无穷大，常见于收益表达式在部分节点无定义或步长过粗。
	ErrNonFiniteResult = New(ErrNumerical, 422102, "valuation result is not finite", "check payoff expression, step count and volatility", nil)
	// ErrServiceClosed 估值服务已关闭。
	ErrServiceClosed = New(ErrUnavailable, 503101, "valuation service is closed", "worker pool has been stopped", nil)
	// ErrPoolFull 协程池队列已满。
	ErrPoolFull = New(ErrUnavailable, 503102, "worker pool is full", "retry later or enlarge worker.queue_size", nil)
	// ErrTaskTimeout 任务提交超时。
	ErrTaskTimeout = New(ErrUnavailable, 503103, "task submission timeout", "", nil)
)
