package dbtest

var schema = []string{
	`CREATE TABLE users (
		id INTEGER PRIMARY KEY,
		username TEXT NOT NULL,
		email TEXT NOT NULL,
		balance NUMERIC NOT NULL DEFAULT 0,
		created_at DATETIME NOT NULL,
		updated_at DATETIME NOT NULL
	)`,
	`CREATE TABLE performers (
		id INTEGER PRIMARY KEY,
		username TEXT NOT NULL,
		email TEXT NOT NULL,
		balance NUMERIC NOT NULL DEFAULT 0,
		monthly_price NUMERIC NOT NULL DEFAULT 0,
		yearly_price NUMERIC NOT NULL DEFAULT 0,
		stats_subscribers INTEGER NOT NULL DEFAULT 0,
		created_at DATETIME NOT NULL,
		updated_at DATETIME NOT NULL
	)`,
	`CREATE TABLE performer_commissions (
		performer_id INTEGER NOT NULL,
		source_type TEXT NOT NULL,
		commission NUMERIC NOT NULL,
		updated_at DATETIME NOT NULL,
		PRIMARY KEY (performer_id, source_type)
	)`,
	`CREATE TABLE videos (
		id INTEGER PRIMARY KEY,
		performer_id INTEGER NOT NULL,
		title TEXT NOT NULL,
		price NUMERIC NOT NULL DEFAULT 0,
		is_sale BOOLEAN NOT NULL DEFAULT 0,
		created_at DATETIME NOT NULL
	)`,
	`CREATE TABLE photos (
		id INTEGER PRIMARY KEY,
		performer_id INTEGER NOT NULL,
		title TEXT NOT NULL,
		price NUMERIC NOT NULL DEFAULT 0,
		is_sale BOOLEAN NOT NULL DEFAULT 0,
		created_at DATETIME NOT NULL
	)`,
	`CREATE TABLE products (
		id INTEGER PRIMARY KEY,
		performer_id INTEGER NOT NULL,
		name TEXT NOT NULL,
		description TEXT NOT NULL DEFAULT '',
		product_type TEXT NOT NULL,
		price NUMERIC NOT NULL DEFAULT 0,
		stock INTEGER NOT NULL DEFAULT 0,
		created_at DATETIME NOT NULL
	)`,
	`CREATE TABLE feeds (
		id INTEGER PRIMARY KEY,
		performer_id INTEGER NOT NULL,
		text TEXT NOT NULL DEFAULT '',
		price NUMERIC NOT NULL DEFAULT 0,
		is_sale BOOLEAN NOT NULL DEFAULT 0,
		created_at DATETIME NOT NULL
	)`,
	`CREATE TABLE wallet_packages (
		id INTEGER PRIMARY KEY,
		name TEXT NOT NULL,
		price NUMERIC NOT NULL,
		token_amount NUMERIC NOT NULL,
		is_active BOOLEAN NOT NULL DEFAULT 1,
		created_at DATETIME NOT NULL
	)`,
	`CREATE TABLE coupons (
		id INTEGER PRIMARY KEY,
		code TEXT NOT NULL UNIQUE,
		value NUMERIC NOT NULL,
		expired_at DATETIME,
		number_of_use_limit INTEGER NOT NULL DEFAULT 0,
		used_count INTEGER NOT NULL DEFAULT 0,
		is_active BOOLEAN NOT NULL DEFAULT 1,
		created_at DATETIME NOT NULL
	)`,
	`CREATE TABLE settings (
		key TEXT PRIMARY KEY,
		value TEXT NOT NULL,
		updated_at DATETIME NOT NULL
	)`,
	`CREATE TABLE gateway_configs (
		id INTEGER PRIMARY KEY,
		gateway TEXT NOT NULL,
		performer_id INTEGER NOT NULL DEFAULT 0,
		config TEXT NOT NULL,
		is_active BOOLEAN NOT NULL DEFAULT 1,
		created_at DATETIME NOT NULL,
		updated_at DATETIME NOT NULL,
		UNIQUE (gateway, performer_id)
	)`,
	`CREATE TABLE orders (
		id INTEGER PRIMARY KEY,
		order_number TEXT NOT NULL UNIQUE,
		buyer_id INTEGER NOT NULL,
		buyer_source TEXT NOT NULL,
		seller_id INTEGER NOT NULL DEFAULT 0,
		seller_source TEXT NOT NULL,
		type TEXT NOT NULL,
		quantity INTEGER NOT NULL DEFAULT 1,
		original_price NUMERIC NOT NULL,
		total_price NUMERIC NOT NULL,
		coupon_info TEXT,
		status TEXT NOT NULL,
		payment_gateway TEXT NOT NULL DEFAULT '',
		paid_at DATETIME,
		created_at DATETIME NOT NULL,
		updated_at DATETIME NOT NULL
	)`,
	`CREATE TABLE order_details (
		id INTEGER PRIMARY KEY,
		order_id INTEGER NOT NULL,
		order_number TEXT NOT NULL,
		buyer_id INTEGER NOT NULL,
		buyer_source TEXT NOT NULL,
		buyer_username TEXT NOT NULL DEFAULT '',
		buyer_email TEXT NOT NULL DEFAULT '',
		seller_id INTEGER NOT NULL DEFAULT 0,
		seller_source TEXT NOT NULL,
		seller_username TEXT NOT NULL DEFAULT '',
		product_type TEXT NOT NULL,
		product_id INTEGER NOT NULL DEFAULT 0,
		name TEXT NOT NULL DEFAULT '',
		description TEXT NOT NULL DEFAULT '',
		quantity INTEGER NOT NULL DEFAULT 1,
		unit_price NUMERIC NOT NULL,
		original_price NUMERIC NOT NULL,
		total_price NUMERIC NOT NULL,
		token_amount NUMERIC,
		coupon_info TEXT,
		status TEXT NOT NULL,
		delivery_status TEXT NOT NULL,
		payment_status TEXT NOT NULL,
		payment_gateway TEXT NOT NULL DEFAULT '',
		created_at DATETIME NOT NULL,
		updated_at DATETIME NOT NULL
	)`,
	`CREATE TABLE transactions (
		id INTEGER PRIMARY KEY,
		order_id INTEGER NOT NULL,
		payment_gateway TEXT NOT NULL,
		buyer_id INTEGER NOT NULL,
		buyer_source TEXT NOT NULL,
		type TEXT NOT NULL,
		total_price NUMERIC NOT NULL,
		status TEXT NOT NULL,
		payment_token TEXT NOT NULL DEFAULT '',
		subscription_ref TEXT NOT NULL DEFAULT '',
		payment_response_info TEXT,
		succeeded_at DATETIME,
		created_at DATETIME NOT NULL,
		updated_at DATETIME NOT NULL
	)`,
	`CREATE TABLE payment_events (
		id INTEGER PRIMARY KEY,
		provider TEXT NOT NULL,
		provider_event_id TEXT NOT NULL,
		event_type TEXT NOT NULL,
		transaction_id INTEGER,
		payload TEXT NOT NULL,
		received_at DATETIME NOT NULL,
		processed_at DATETIME,
		UNIQUE (provider, provider_event_id)
	)`,
	`CREATE TABLE earnings (
		id INTEGER PRIMARY KEY,
		transaction_id INTEGER NOT NULL,
		order_id INTEGER NOT NULL,
		order_detail_id INTEGER NOT NULL,
		performer_id INTEGER NOT NULL,
		user_id INTEGER NOT NULL,
		source_type TEXT NOT NULL,
		gross_price NUMERIC NOT NULL,
		commission NUMERIC NOT NULL,
		net_price NUMERIC NOT NULL,
		is_paid BOOLEAN NOT NULL DEFAULT 0,
		payout_status TEXT NOT NULL,
		created_at DATETIME NOT NULL,
		updated_at DATETIME NOT NULL,
		UNIQUE (transaction_id, order_detail_id)
	)`,
	`CREATE TABLE subscriptions (
		id INTEGER PRIMARY KEY,
		performer_id INTEGER NOT NULL,
		user_id INTEGER NOT NULL,
		subscription_type TEXT NOT NULL,
		subscription_ref TEXT NOT NULL DEFAULT '',
		status TEXT NOT NULL,
		payment_gateway TEXT NOT NULL DEFAULT '',
		transaction_id INTEGER NOT NULL DEFAULT 0,
		start_recurring_date DATETIME,
		next_recurring_date DATETIME,
		expired_at DATETIME NOT NULL,
		meta TEXT,
		created_at DATETIME NOT NULL,
		updated_at DATETIME NOT NULL,
		UNIQUE (performer_id, user_id)
	)`,
	`CREATE TABLE outbox_events (
		id INTEGER PRIMARY KEY,
		event_type TEXT NOT NULL,
		payload TEXT NOT NULL,
		dedupe_key TEXT NOT NULL UNIQUE,
		occurred_at DATETIME NOT NULL,
		published_at DATETIME,
		attempts INTEGER NOT NULL DEFAULT 0,
		last_error TEXT NOT NULL DEFAULT '',
		created_at DATETIME NOT NULL
	)`,
	`CREATE TABLE event_deliveries (
		event_id INTEGER NOT NULL,
		handler TEXT NOT NULL,
		delivered_at DATETIME NOT NULL,
		PRIMARY KEY (event_id, handler)
	)`,
	`CREATE TABLE audit_logs (
		id INTEGER PRIMARY KEY,
		actor_type TEXT NOT NULL,
		actor_id TEXT,
		action TEXT NOT NULL,
		target_type TEXT NOT NULL,
		target_id TEXT,
		metadata TEXT,
		ip_address TEXT,
		user_agent TEXT,
		created_at DATETIME NOT NULL
	)`,
}
