package cubes

// builtinCubes is the explicit classification table for the exchange
// warehouse. Every table the generator may reference must be listed here with
// its kind; suffix conventions in the physical names are informational only.
var builtinCubes = []*Cube{
	{
		Name:        "User Profile 360",
		Table:       "user_profile_360",
		Kind:        KindSnapshot,
		TimeColumn:  "registration_date",
		Description: "One row per user with identity, KYC, segment and lifetime metrics, restated daily.",
		DDL: `
CREATE TABLE public.user_profile_360 (
    user_code BIGINT,              -- unique user id
    email TEXT,
    country TEXT,
    registration_date TIMESTAMPTZ,
    registration_date_only DATE,   -- use for daily registration counts (NRU)
    first_deposit_date TIMESTAMPTZ, -- FTD date; NOT NULL means depositor
    is_active_user_7d BIGINT,      -- 1 = logged in within last 7 days
    is_active_trader_7d BIGINT,    -- 1 = traded within last 7 days
    kyc_status_desc TEXT,          -- 'Basic', 'Advanced'
    user_segment TEXT,             -- 'VIP', 'High Value', 'Medium Value', 'Low Value'
    lifecycle_stage TEXT,          -- 'Acquisition', 'Active', 'Churned'
    total_trade_volume DECIMAL,    -- all-time volume in USDT
    total_deposit_volume DECIMAL,
    total_withdraw_volume DECIMAL,
    total_net_fees DECIMAL,        -- all-time revenue
    total_wallet_balance DECIMAL,  -- available + frozen
    inviter_user_code BIGINT,      -- NULL if organic
    ds TEXT                        -- partition 'YYYYMMDD'
);`,
		Docs: `Snapshot cube: every partition restates ALL users as of that day.
For "current" questions (totals, balances, segments) pin ds to the latest
partition. For registration trends, still pin ds and group by
registration_date_only.`,
	},
	{
		Name:        "Trade Activity",
		Table:       "dws_all_trades_di",
		Kind:        KindIncremental,
		TimeColumn:  "trade_datetime",
		Description: "Individual trade executions from futures and spot markets.",
		DDL: `
CREATE TABLE public.dws_all_trades_di (
    user_code BIGINT,
    country TEXT,
    market_type TEXT,        -- 'futures' or 'spot'
    symbol TEXT,             -- e.g. 'BTCUSDT', 'ETHUSDT'
    deal_amount DECIMAL,     -- trade value in USDT
    deal_quantity DECIMAL,   -- asset quantity
    deal_price DECIMAL,
    fee DECIMAL,
    net_fee DECIMAL,         -- fee minus rebate, actual revenue
    leverage DECIMAL,
    position_direction TEXT, -- 'long', 'short'
    order_side TEXT,         -- 'buy', 'sell'
    trade_datetime TIMESTAMPTZ,
    ds TEXT                  -- partition 'YYYYMMDD'
);`,
		Docs: `Use for volume, fees, symbol breakdowns and trade counts.
Volume means SUM(deal_amount). Revenue means SUM(net_fee).`,
	},
	{
		Name:        "Transaction Detail",
		Table:       "dws_user_deposit_withdraw_detail_di",
		Kind:        KindIncremental,
		TimeColumn:  "create_at",
		Description: "Deposit and withdrawal records with chain-level detail.",
		DDL: `
CREATE TABLE public.dws_user_deposit_withdraw_detail_di (
    user_code TEXT,
    type TEXT,                  -- 'deposit' or 'withdraw'
    transaction_code TEXT,
    coin TEXT,                  -- e.g. BTC, USDT
    chain TEXT,                 -- e.g. Ethereum, TRC20
    wallet_address TEXT,
    transfer_hash TEXT,
    amount DECIMAL(38,18),      -- requested amount
    real_amount DECIMAL(38,18), -- settled amount
    fee_amount DECIMAL(38,18),
    status TEXT,                -- 'success', 'pending', 'failed'
    create_at TIMESTAMPTZ,
    ds TEXT                     -- partition 'YYYYMMDD'
);`,
		Docs: `Net flow = deposits minus withdrawals on real_amount where
status = 'success'.`,
	},
	{
		Name:        "Login History",
		Table:       "dwd_login_history_log_di",
		Kind:        KindIncremental,
		TimeColumn:  "create_at",
		Description: "One row per login attempt.",
		DDL: `
CREATE TABLE public.dwd_login_history_log_di (
    user_code BIGINT,
    login_ip TEXT,
    country TEXT,
    device_type TEXT,   -- 'ios', 'android', 'web'
    login_result TEXT,  -- 'success', 'failed'
    create_at TIMESTAMPTZ,
    ds TEXT             -- partition 'YYYYMMDD'
);`,
	},
	{
		Name:        "Device Log",
		Table:       "dwd_user_device_log_di",
		Kind:        KindIncremental,
		TimeColumn:  "create_at",
		Description: "Device fingerprints per user session, used for fraud checks.",
		DDL: `
CREATE TABLE public.dwd_user_device_log_di (
    user_code BIGINT,
    device_id TEXT,
    device_model TEXT,
    os_version TEXT,
    app_version TEXT,
    ip_address TEXT,
    create_at TIMESTAMPTZ,
    ds TEXT            -- partition 'YYYYMMDD'
);`,
	},
	{
		Name:        "Points Tasks",
		Table:       "dwd_activity_t_points_user_task_di",
		Kind:        KindIncremental,
		TimeColumn:  "created_at",
		Description: "Points-system task completions and rewards.",
		DDL: `
CREATE TABLE public.dwd_activity_t_points_user_task_di (
    user_code BIGINT,
    task_code TEXT,
    task_name TEXT,
    points_awarded DECIMAL,
    task_status TEXT,  -- 'completed', 'claimed', 'expired'
    created_at TIMESTAMPTZ,
    ds TEXT            -- partition 'YYYYMMDD'
);`,
	},
	{
		Name:        "Risk Campaign Blacklist",
		Table:       "risk_campaign_blacklist",
		Kind:        KindSnapshot,
		TimeColumn:  "start_date",
		Description: "Users blocked from campaigns for abuse, restated daily.",
		DDL: `
CREATE TABLE public.risk_campaign_blacklist (
    user_code BIGINT,
    reason TEXT,          -- e.g. 'wash_trading', 'multi_account'
    risk_score DECIMAL,
    blocked_campaigns TEXT,
    start_date TIMESTAMPTZ,
    ds TEXT               -- partition 'YYYYMMDD'
);`,
	},
	{
		Name:        "Referral Volume",
		Table:       "ads_total_root_referral_volume_df",
		Kind:        KindSnapshot,
		TimeColumn:  "", // daily restated totals only, no event time
		Description: "Accumulated referral volume per root inviter, restated daily.",
		DDL: `
CREATE TABLE public.ads_total_root_referral_volume_df (
    root_user_code BIGINT,   -- the root inviter
    invite_count BIGINT,
    referral_trade_volume DECIMAL,
    referral_net_fees DECIMAL,
    ds TEXT                  -- partition 'YYYYMMDD'
);`,
		Docs: `No event-time column: totals are accumulated, so always read the
latest partition only.`,
	},
}
