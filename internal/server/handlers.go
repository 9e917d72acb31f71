package server

import (
	"net/http"
	"time"

	"github.com/labstack/echo/v4"
	"github.com/shopspring/decimal"

	"github.com/aki-0517/metawallet/internal/bridge"
	"github.com/aki-0517/metawallet/internal/transfer"
	"github.com/aki-0517/metawallet/internal/types"
	"github.com/aki-0517/metawallet/internal/util"
)

type sessionResponse struct {
	EVMAddress    string `json:"evm_address"`
	SolanaAddress string `json:"solana_address"`
	Username      string `json:"username,omitempty"`
	FaucetFunded  bool   `json:"faucet_funded"`
	Email         string `json:"email,omitempty"`
}

func (s *Server) login(c echo.Context) error {
	sess, err := s.deps.Sessions.Login(c.Request().Context())
	if err != nil {
		return httpError(err)
	}
	s.startWatch(sess)
	return c.JSON(http.StatusOK, sessionResponse{
		EVMAddress:    sess.EVMAddress(),
		SolanaAddress: sess.SolanaAddress(),
		Username:      sess.Username,
		FaucetFunded:  sess.FaucetFunded,
		Email:         sess.User.Email,
	})
}

func (s *Server) logout(c echo.Context) error {
	s.stopWatch()
	if err := s.deps.Sessions.Logout(c.Request().Context()); err != nil {
		return httpError(err)
	}
	return c.NoContent(http.StatusNoContent)
}

func (s *Server) currentSession(c echo.Context) error {
	sess, err := s.deps.Sessions.Current()
	if err != nil {
		return httpError(err)
	}
	return c.JSON(http.StatusOK, sessionResponse{
		EVMAddress:    sess.EVMAddress(),
		SolanaAddress: sess.SolanaAddress(),
		Username:      sess.Username,
		FaucetFunded:  sess.FaucetFunded,
		Email:         sess.User.Email,
	})
}

func (s *Server) markFaucetFunded(c echo.Context) error {
	if err := s.deps.Sessions.SetFaucetFunded(c.Request().Context()); err != nil {
		return httpError(err)
	}
	return c.NoContent(http.StatusNoContent)
}

func (s *Server) balances(c echo.Context) error {
	sess, err := s.deps.Sessions.Current()
	if err != nil {
		return httpError(err)
	}

	// Serve the watcher's view when it has one; fall back to a direct
	// fetch before the first refresh lands.
	s.mu.Lock()
	cached := s.latest
	s.mu.Unlock()
	if cached != nil {
		return c.JSON(http.StatusOK, cached)
	}

	out, err := s.deps.Aggregator.Fetch(c.Request().Context(), map[types.Chain]string{
		types.ChainEthereum: sess.EVMAddress(),
		types.ChainSolana:   sess.SolanaAddress(),
	})
	s.deps.Wallet.RecordBalanceRefresh(err == nil)
	if err != nil {
		return httpError(err)
	}
	return c.JSON(http.StatusOK, out)
}

func (s *Server) availability(c echo.Context) error {
	avail, err := s.deps.Resolver.CheckBoth(c.Request().Context(), c.Param("name"))
	if err != nil {
		s.deps.Wallet.RecordNameCheck("error")
		return httpError(err)
	}

	result := "taken"
	if avail.Both() {
		result = "available"
	}
	s.deps.Wallet.RecordNameCheck(result)

	return c.JSON(http.StatusOK, map[string]interface{}{
		"evm":       avail.EVM,
		"solana":    avail.Solana,
		"available": avail.Both(),
	})
}

type registerRequest struct {
	Username string `json:"username" validate:"required,min=3,max=20"`
}

func (s *Server) register(c echo.Context) error {
	var req registerRequest
	if err := c.Bind(&req); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, err.Error())
	}
	if err := c.Validate(&req); err != nil {
		return err
	}

	sess, err := s.deps.Sessions.Current()
	if err != nil {
		return httpError(err)
	}

	registrars, err := s.deps.RegistrarFactory(sess)
	if err != nil {
		return httpError(err)
	}

	ctx := c.Request().Context()
	evmRes, solRes, err := registrars.RegisterBoth(ctx, req.Username, sess.EVMAddress(), sess.SolanaAddress())
	if err != nil {
		return httpError(err)
	}

	if err := s.deps.Sessions.SetUsername(ctx, req.Username); err != nil {
		return httpError(err)
	}

	return c.JSON(http.StatusCreated, map[string]interface{}{
		"username":  req.Username,
		"evm_tx":    evmRes.TxRef,
		"solana_tx": solRes.TxRef,
	})
}

func (s *Server) resolve(c echo.Context) error {
	dest, err := s.deps.Resolver.ResolveUsername(c.Request().Context(), c.Param("name"))
	if err != nil {
		return httpError(err)
	}
	return c.JSON(http.StatusOK, dest)
}

type transferRequest struct {
	Destination string `json:"destination" validate:"required"`
	Amount      string `json:"amount" validate:"required"`
	Selection   string `json:"selection" validate:"omitempty,oneof=ethereum solana auto"`
}

type legResponse struct {
	Chain  types.Chain `json:"chain"`
	Amount string      `json:"amount"`
	TxRef  string      `json:"tx_ref,omitempty"`
	Error  string      `json:"error,omitempty"`
}

func (s *Server) send(c echo.Context) error {
	var req transferRequest
	if err := c.Bind(&req); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, err.Error())
	}
	if err := c.Validate(&req); err != nil {
		return err
	}

	sess, err := s.deps.Sessions.Current()
	if err != nil {
		return httpError(err)
	}

	amount, err := decimal.NewFromString(req.Amount)
	if err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "invalid amount")
	}

	selection := types.ChainSelection(req.Selection)
	if req.Selection == "" {
		selection = types.SelectAuto
	}

	router, err := s.sessionRouter(sess)
	if err != nil {
		return httpError(err)
	}

	ctx := c.Request().Context()
	tr := router.NewTransfer(transfer.Request{
		Destination: req.Destination,
		Amount:      amount,
		Selection:   selection,
	})
	if err := router.Resolve(ctx, tr); err != nil {
		return httpError(err)
	}

	legs, err := router.Confirm(ctx, tr, map[types.Chain]string{
		types.ChainEthereum: sess.EVMAddress(),
		types.ChainSolana:   sess.SolanaAddress(),
	})
	if err != nil {
		return httpError(err)
	}

	out := make([]legResponse, 0, len(legs))
	for _, leg := range legs {
		resp := legResponse{Chain: leg.Chain, Amount: leg.Amount.String(), TxRef: leg.TxRef}
		if leg.Err != nil {
			resp.Error = leg.Err.Error()
		}
		s.deps.Wallet.RecordTransferLeg(leg.Chain.String(), leg.Err == nil)
		out = append(out, resp)
	}

	status := http.StatusOK
	if tr.State == transfer.StateFailed {
		// Partial success still reports every leg; the client decides
		// what to tell the user.
		status = http.StatusMultiStatus
	}
	return c.JSON(status, map[string]interface{}{
		"state": tr.State,
		"legs":  out,
	})
}

type bridgeRequest struct {
	Destination string `json:"destination" validate:"required"`
	Amount      string `json:"amount" validate:"required"`
}

func (s *Server) bridgeTransfer(c echo.Context) error {
	var req bridgeRequest
	if err := c.Bind(&req); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, err.Error())
	}
	if err := c.Validate(&req); err != nil {
		return err
	}

	sess, err := s.deps.Sessions.Current()
	if err != nil {
		return httpError(err)
	}

	amount, err := util.ToBaseUnits(req.Amount, util.USDCDecimals)
	if err != nil || !amount.IsUint64() || amount.Sign() <= 0 {
		return echo.NewHTTPError(http.StatusBadRequest, "invalid amount")
	}

	coordinator, err := s.sessionCoordinator(sess)
	if err != nil {
		return httpError(err)
	}

	started := time.Now()
	op, bridgeErr := coordinator.Bridge(c.Request().Context(), bridge.Request{
		Destination:      req.Destination,
		Amount:           amount.Uint64(),
		SourceOwner:      sess.SolanaAddress(),
		DestinationOwner: sess.EVMAddress(),
	})
	s.deps.Wallet.RecordBridgeAttempt(string(op.Phase), time.Since(started))

	if bridgeErr != nil {
		// The operation names how far the attempt got; money may have
		// already moved on the source chain.
		he := httpError(bridgeErr)
		he.Message = map[string]interface{}{
			"error":     bridgeErr.Error(),
			"operation": op,
		}
		return he
	}
	return c.JSON(http.StatusOK, op)
}

func (s *Server) history(c echo.Context) error {
	sess, err := s.deps.Sessions.Current()
	if err != nil {
		return httpError(err)
	}

	direction := types.Direction(c.QueryParam("direction"))
	list, err := s.deps.Ledger.History(c.Request().Context(), sess.OwnedAddresses(), direction)
	if err != nil {
		return httpError(err)
	}
	return c.JSON(http.StatusOK, list)
}
