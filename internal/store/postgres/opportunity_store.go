package postgres

import (
	"context"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/openarb/venuewatch/internal/domain"
)

// OpportunityStore implements domain.OpportunityStore using PostgreSQL.
type OpportunityStore struct {
	pool *pgxpool.Pool
}

// NewOpportunityStore creates an OpportunityStore backed by the given pool.
func NewOpportunityStore(pool *pgxpool.Pool) *OpportunityStore {
	return &OpportunityStore{pool: pool}
}

var _ domain.OpportunityStore = (*OpportunityStore)(nil)

const oppSelectCols = `id, pair, instrument, buy_venue, sell_venue,
	buy_price, sell_price, profit_percent, net_profit,
	cost_buy_fee, cost_sell_fee, cost_buy_slippage, cost_sell_slippage,
	cost_gas, cost_protocol_fee, cost_protection_fee,
	liquidity_score, execution_probability, confidence,
	min_trade_size, max_trade_size,
	oracle_valid, oracle_confidence, oracle_deviation, oracle_staleness_ms, oracle_reason,
	detected_at`

// Insert stores an emitted opportunity.
func (s *OpportunityStore) Insert(ctx context.Context, opp domain.ArbitrageOpportunity) error {
	const query = `
		INSERT INTO opportunities (
			id, pair, instrument, buy_venue, sell_venue,
			buy_price, sell_price, profit_percent, net_profit,
			cost_buy_fee, cost_sell_fee, cost_buy_slippage, cost_sell_slippage,
			cost_gas, cost_protocol_fee, cost_protection_fee,
			liquidity_score, execution_probability, confidence,
			min_trade_size, max_trade_size,
			oracle_valid, oracle_confidence, oracle_deviation, oracle_staleness_ms, oracle_reason,
			detected_at
		) VALUES (
			$1, $2, $3, $4, $5,
			$6, $7, $8, $9,
			$10, $11, $12, $13,
			$14, $15, $16,
			$17, $18, $19,
			$20, $21,
			$22, $23, $24, $25, $26,
			$27
		)`

	var (
		oracleValid       *bool
		oracleConfidence  *float64
		oracleDeviation   *float64
		oracleStalenessMs *int64
		oracleReason      *string
	)
	if opp.Oracle != nil {
		oracleValid = &opp.Oracle.Valid
		oracleConfidence = &opp.Oracle.Confidence
		oracleDeviation = &opp.Oracle.Deviation
		ms := opp.Oracle.Staleness.Milliseconds()
		oracleStalenessMs = &ms
		if opp.Oracle.Reason != "" {
			oracleReason = &opp.Oracle.Reason
		}
	}

	_, err := s.pool.Exec(ctx, query,
		opp.ID, opp.Pair, opp.Instrument, opp.BuyVenue, opp.SellVenue,
		opp.BuyPrice, opp.SellPrice, opp.ProfitPercent, opp.NetProfit,
		opp.Costs.BuyFee, opp.Costs.SellFee, opp.Costs.BuySlippage, opp.Costs.SellSlippage,
		opp.Costs.Gas, opp.Costs.ProtocolFee, opp.Costs.ProtectionFee,
		opp.LiquidityScore, opp.ExecutionProbability, opp.Confidence,
		opp.MinTradeSize, opp.MaxTradeSize,
		oracleValid, oracleConfidence, oracleDeviation, oracleStalenessMs, oracleReason,
		opp.DetectedAt,
	)
	if err != nil {
		return fmt.Errorf("postgres: insert opportunity %s: %w", opp.ID, err)
	}
	return nil
}

// ListRecent returns the most recent opportunities ordered by detection time.
func (s *OpportunityStore) ListRecent(ctx context.Context, limit int) ([]domain.ArbitrageOpportunity, error) {
	query := `SELECT ` + oppSelectCols + ` FROM opportunities ORDER BY detected_at DESC`
	args := []any{}

	if limit > 0 {
		query += " LIMIT $1"
		args = append(args, limit)
	}

	rows, err := s.pool.Query(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("postgres: list recent opportunities: %w", err)
	}
	defer rows.Close()
	return scanOpportunities(rows)
}

// ListBefore returns all opportunities detected strictly before the cutoff,
// oldest first. Used by the archiver.
func (s *OpportunityStore) ListBefore(ctx context.Context, before time.Time) ([]domain.ArbitrageOpportunity, error) {
	query := `SELECT ` + oppSelectCols + ` FROM opportunities WHERE detected_at < $1 ORDER BY detected_at ASC`

	rows, err := s.pool.Query(ctx, query, before)
	if err != nil {
		return nil, fmt.Errorf("postgres: list opportunities before %s: %w", before.Format(time.RFC3339), err)
	}
	defer rows.Close()
	return scanOpportunities(rows)
}

// DeleteBefore removes opportunities detected strictly before the cutoff and
// returns the number of rows deleted.
func (s *OpportunityStore) DeleteBefore(ctx context.Context, before time.Time) (int64, error) {
	tag, err := s.pool.Exec(ctx,
		`DELETE FROM opportunities WHERE detected_at < $1`, before)
	if err != nil {
		return 0, fmt.Errorf("postgres: delete opportunities before %s: %w", before.Format(time.RFC3339), err)
	}
	return tag.RowsAffected(), nil
}

type pgxRows interface {
	Next() bool
	Scan(dest ...any) error
	Err() error
}

func scanOpportunities(rows pgxRows) ([]domain.ArbitrageOpportunity, error) {
	var opps []domain.ArbitrageOpportunity
	for rows.Next() {
		var opp domain.ArbitrageOpportunity
		var (
			oracleValid       *bool
			oracleConfidence  *float64
			oracleDeviation   *float64
			oracleStalenessMs *int64
			oracleReason      *string
		)

		if err := rows.Scan(
			&opp.ID, &opp.Pair, &opp.Instrument, &opp.BuyVenue, &opp.SellVenue,
			&opp.BuyPrice, &opp.SellPrice, &opp.ProfitPercent, &opp.NetProfit,
			&opp.Costs.BuyFee, &opp.Costs.SellFee, &opp.Costs.BuySlippage, &opp.Costs.SellSlippage,
			&opp.Costs.Gas, &opp.Costs.ProtocolFee, &opp.Costs.ProtectionFee,
			&opp.LiquidityScore, &opp.ExecutionProbability, &opp.Confidence,
			&opp.MinTradeSize, &opp.MaxTradeSize,
			&oracleValid, &oracleConfidence, &oracleDeviation, &oracleStalenessMs, &oracleReason,
			&opp.DetectedAt,
		); err != nil {
			return nil, fmt.Errorf("postgres: scan opportunity: %w", err)
		}

		if oracleValid != nil {
			result := domain.ValidationResult{Valid: *oracleValid}
			if oracleConfidence != nil {
				result.Confidence = *oracleConfidence
			}
			if oracleDeviation != nil {
				result.Deviation = *oracleDeviation
			}
			if oracleStalenessMs != nil {
				result.Staleness = time.Duration(*oracleStalenessMs) * time.Millisecond
			}
			if oracleReason != nil {
				result.Reason = *oracleReason
			}
			opp.Oracle = &result
		}
		opps = append(opps, opp)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("postgres: opportunity rows: %w", err)
	}
	return opps, nil
}
