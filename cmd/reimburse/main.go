// Command reimburse is the terminal front-end for the reimbursement
// service: employees submit bills, managers review them, finance pays
// them out, admins manage accounts.
package main

import (
	"bufio"
	"context"
	"flag"
	"fmt"
	"io"
	"os"
	"strings"
	"text/tabwriter"

	"reimburse/internal/billflow"
	"reimburse/internal/gateway"
	"reimburse/internal/guard"
	"reimburse/internal/localstore"
	"reimburse/internal/models"
	"reimburse/internal/services"
	"reimburse/internal/session"

	"golang.org/x/term"
)

// EnvConfigPath overrides the credential store location (mainly for
// tests).
const EnvConfigPath = "REIMBURSE_CONFIG"

func main() {
	if err := run(os.Args[1:], os.Stdin, os.Stdout, os.Stderr); err != nil {
		if err == flag.ErrHelp {
			os.Exit(0)
		}
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}

const usage = `Usage: reimburse <command> [flags]

Commands:
  login        Sign in (-user, optional -password)
  logout       Sign out and clear stored credentials
  register     Create an account (-user, -email, optional -first -last -password)
  whoami       Show the signed-in identity and primary role
  submit       Submit a bill (-title, -amount, optional -desc -date -receipt)
  mine         List your bills
  show         Show one bill with history (-id)
  pending      List bills awaiting manager review
  approve      Approve a pending bill (-id, optional -comments)
  reject       Reject a pending bill (-id, optional -comments)
  approved     List bills awaiting finance payout
  close        Close an approved bill (-id, optional -comments)
  users        List accounts (admin)
  user-update  Update an account (-id, optional -email -first -last -department -roles)
  user-delete  Delete an account (-id)
`

// app bundles the client stack behind the commands.
type app struct {
	local   *localstore.Store
	sess    *session.Store
	authSvc *services.AuthService
	userSvc *services.UserService
	bills   *billflow.Manager

	stdin  io.Reader
	stdout io.Writer
	stderr io.Writer
}

type printNotifier struct {
	out io.Writer
	err io.Writer
}

func (n printNotifier) Success(message string) { fmt.Fprintln(n.out, message) }
func (n printNotifier) Failure(message string) { fmt.Fprintln(n.err, message) }

func run(args []string, stdin io.Reader, stdout, stderr io.Writer) error {
	if len(args) == 0 {
		fmt.Fprint(stdout, usage)
		return fmt.Errorf("missing command")
	}
	command, rest := args[0], args[1:]

	if command == "help" || command == "-h" || command == "--help" {
		fmt.Fprint(stdout, usage)
		return nil
	}

	path := os.Getenv(EnvConfigPath)
	if path == "" {
		var err error
		path, err = localstore.DefaultPath()
		if err != nil {
			return fmt.Errorf("failed to locate config dir: %w", err)
		}
	}

	local, err := localstore.Open(path)
	if err != nil {
		return fmt.Errorf("failed to open credential store: %w", err)
	}
	defer local.Close()

	client := gateway.New(local)
	authSvc := services.NewAuth(client)
	a := &app{
		local:   local,
		sess:    session.New(authSvc, local),
		authSvc: authSvc,
		userSvc: services.NewUsers(client),
		bills:   billflow.NewManager(services.NewBills(client), printNotifier{out: stdout, err: stderr}),
		stdin:   stdin,
		stdout:  stdout,
		stderr:  stderr,
	}
	client.SetUnauthorizedHook(func() {
		a.sess.HandleUnauthorized()
		fmt.Fprintln(stderr, "Session expired, please sign in again.")
	})

	ctx := context.Background()

	switch command {
	case "login":
		return a.cmdLogin(ctx, rest)
	case "logout":
		return a.cmdLogout(rest)
	case "register":
		return a.cmdRegister(ctx, rest)
	case "whoami":
		return a.cmdWhoami(ctx, rest)
	case "submit":
		return a.cmdSubmit(ctx, rest)
	case "mine":
		return a.cmdMine(ctx, rest)
	case "show":
		return a.cmdShow(ctx, rest)
	case "pending":
		return a.cmdPending(ctx, rest)
	case "approve":
		return a.cmdReview(ctx, rest, "approve")
	case "reject":
		return a.cmdReview(ctx, rest, "reject")
	case "approved":
		return a.cmdApproved(ctx, rest)
	case "close":
		return a.cmdClose(ctx, rest)
	case "users":
		return a.cmdUsers(ctx, rest)
	case "user-update":
		return a.cmdUserUpdate(ctx, rest)
	case "user-delete":
		return a.cmdUserDelete(ctx, rest)
	default:
		fmt.Fprint(a.stdout, usage)
		return fmt.Errorf("unknown command %q", command)
	}
}

func (a *app) flagSet(name string) *flag.FlagSet {
	fs := flag.NewFlagSet(name, flag.ContinueOnError)
	fs.SetOutput(a.stderr)
	return fs
}

// requireView restores the session and runs the guard for the named view.
// Returns false when the command should not proceed; the redirect has
// already been rendered.
func (a *app) requireView(ctx context.Context, view string, allowedRoles ...string) (bool, error) {
	a.sess.Restore(ctx)

	result := guard.Decide(a.sess, view, allowedRoles...)
	switch result.Decision {
	case guard.Allow:
		return true, nil
	case guard.RedirectLogin:
		return false, fmt.Errorf("not signed in (wanted %s); run 'reimburse login -user <name>'", result.From)
	case guard.RedirectHome:
		fmt.Fprintf(a.stdout, "Your role does not grant access to %s; showing your bills instead.\n", view)
		return false, a.renderDashboard(ctx)
	default:
		// Loading cannot happen here: Restore is synchronous.
		return false, fmt.Errorf("session state unresolved")
	}
}

// renderDashboard is the default authenticated landing: the caller's own
// bills.
func (a *app) renderDashboard(ctx context.Context) error {
	bills, err := a.bills.FetchMine(ctx)
	if err != nil {
		return err
	}
	a.printBills(bills)
	return nil
}

func (a *app) cmdLogin(ctx context.Context, args []string) error {
	fs := a.flagSet("login")
	username := fs.String("user", "", "Username")
	passwordFlag := fs.String("password", "", "Password (optional, will prompt if omitted)")
	if err := fs.Parse(args); err != nil {
		return err
	}
	if *username == "" {
		return fmt.Errorf("missing required flag: -user")
	}

	password := *passwordFlag
	if password == "" {
		fmt.Fprint(a.stdout, "Password: ")
		var err error
		password, err = readPassword(a.stdin)
		if err != nil {
			return fmt.Errorf("failed to read password: %w", err)
		}
		fmt.Fprintln(a.stdout)
	}

	if err := a.sess.Login(ctx, *username, password); err != nil {
		return fmt.Errorf("login failed: %w", err)
	}

	user := a.sess.User()
	fmt.Fprintf(a.stdout, "Signed in as %s (%s)\n", user.Username, a.sess.PrimaryRole())
	return nil
}

func (a *app) cmdLogout(args []string) error {
	fs := a.flagSet("logout")
	if err := fs.Parse(args); err != nil {
		return err
	}
	a.sess.Logout()
	fmt.Fprintln(a.stdout, "Signed out.")
	return nil
}

func (a *app) cmdRegister(ctx context.Context, args []string) error {
	fs := a.flagSet("register")
	username := fs.String("user", "", "Username")
	email := fs.String("email", "", "Email address")
	first := fs.String("first", "", "First name")
	last := fs.String("last", "", "Last name")
	passwordFlag := fs.String("password", "", "Password (optional, will prompt if omitted)")
	if err := fs.Parse(args); err != nil {
		return err
	}
	if *username == "" || *email == "" {
		return fmt.Errorf("missing required flags: -user, -email")
	}

	password := *passwordFlag
	if password == "" {
		fmt.Fprint(a.stdout, "Password: ")
		var err error
		password, err = readPassword(a.stdin)
		if err != nil {
			return fmt.Errorf("failed to read password: %w", err)
		}
		fmt.Fprintln(a.stdout)
	}
	if strings.TrimSpace(password) == "" {
		return fmt.Errorf("password cannot be empty")
	}

	resp, err := a.authSvc.Register(ctx, services.RegisterRequest{
		Username:  *username,
		Password:  password,
		Email:     *email,
		FirstName: *first,
		LastName:  *last,
	})
	if err != nil {
		return fmt.Errorf("registration failed: %w", err)
	}
	fmt.Fprintln(a.stdout, resp.Message)
	return nil
}

func (a *app) cmdWhoami(ctx context.Context, args []string) error {
	fs := a.flagSet("whoami")
	if err := fs.Parse(args); err != nil {
		return err
	}

	ok, err := a.requireView(ctx, "whoami")
	if !ok {
		return err
	}

	user := a.sess.User()
	fmt.Fprintf(a.stdout, "Username:     %s\n", user.Username)
	if user.Email != "" {
		fmt.Fprintf(a.stdout, "Email:        %s\n", user.Email)
	}
	fmt.Fprintf(a.stdout, "Primary role: %s\n", a.sess.PrimaryRole())
	fmt.Fprintf(a.stdout, "Roles:        %s\n", strings.Join(user.Roles, ", "))
	return nil
}

func (a *app) cmdSubmit(ctx context.Context, args []string) error {
	fs := a.flagSet("submit")
	title := fs.String("title", "", "Short title for the expense")
	desc := fs.String("desc", "", "Description")
	amount := fs.Float64("amount", 0, "Amount to reimburse")
	date := fs.String("date", "", "Expense date (YYYY-MM-DD, defaults to today)")
	receipt := fs.String("receipt", "", "Receipt URL")
	if err := fs.Parse(args); err != nil {
		return err
	}
	if *title == "" || *amount <= 0 {
		return fmt.Errorf("missing required flags: -title, -amount")
	}

	ok, err := a.requireView(ctx, "submit")
	if !ok {
		return err
	}

	_, err = a.bills.SubmitBill(ctx, services.CreateBillRequest{
		Title:       *title,
		Description: *desc,
		Amount:      *amount,
		Date:        *date,
		ReceiptURL:  *receipt,
	})
	if err != nil {
		return err
	}

	// SubmitBill already refetched the mine collection; show it so the
	// new request is visible with its PENDING status.
	if state := a.bills.MyBills(); state.Data != nil {
		a.printBills(*state.Data)
	}
	return nil
}

func (a *app) cmdMine(ctx context.Context, args []string) error {
	fs := a.flagSet("mine")
	if err := fs.Parse(args); err != nil {
		return err
	}
	ok, err := a.requireView(ctx, "mine")
	if !ok {
		return err
	}
	return a.renderDashboard(ctx)
}

func (a *app) cmdShow(ctx context.Context, args []string) error {
	fs := a.flagSet("show")
	id := fs.Int64("id", 0, "Bill ID")
	if err := fs.Parse(args); err != nil {
		return err
	}
	if *id == 0 {
		return fmt.Errorf("missing required flag: -id")
	}

	ok, err := a.requireView(ctx, "show")
	if !ok {
		return err
	}

	bill, err := a.bills.FetchDetails(ctx, *id)
	if err != nil {
		return err
	}
	a.printBillDetails(bill)
	return nil
}

func (a *app) cmdPending(ctx context.Context, args []string) error {
	fs := a.flagSet("pending")
	if err := fs.Parse(args); err != nil {
		return err
	}
	ok, err := a.requireView(ctx, "pending", "manager")
	if !ok {
		return err
	}

	bills, err := a.bills.FetchPending(ctx)
	if err != nil {
		return err
	}
	a.printBills(bills)
	return nil
}

func (a *app) cmdReview(ctx context.Context, args []string, action string) error {
	fs := a.flagSet(action)
	id := fs.Int64("id", 0, "Bill ID")
	comments := fs.String("comments", "", "Reviewer comments")
	if err := fs.Parse(args); err != nil {
		return err
	}
	if *id == 0 {
		return fmt.Errorf("missing required flag: -id")
	}

	ok, err := a.requireView(ctx, action, "manager")
	if !ok {
		return err
	}

	if action == "approve" {
		_, err = a.bills.ApproveBill(ctx, *id, *comments)
	} else {
		_, err = a.bills.RejectBill(ctx, *id, *comments)
	}
	if err != nil {
		return err
	}

	// The pending queue was refetched on success; show what is left.
	if state := a.bills.PendingBills(); state.Data != nil {
		a.printBills(*state.Data)
	}
	return nil
}

func (a *app) cmdApproved(ctx context.Context, args []string) error {
	fs := a.flagSet("approved")
	if err := fs.Parse(args); err != nil {
		return err
	}
	ok, err := a.requireView(ctx, "approved", "finance")
	if !ok {
		return err
	}

	bills, err := a.bills.FetchApproved(ctx)
	if err != nil {
		return err
	}
	a.printBills(bills)
	return nil
}

func (a *app) cmdClose(ctx context.Context, args []string) error {
	fs := a.flagSet("close")
	id := fs.Int64("id", 0, "Bill ID")
	comments := fs.String("comments", "", "Payout comments")
	if err := fs.Parse(args); err != nil {
		return err
	}
	if *id == 0 {
		return fmt.Errorf("missing required flag: -id")
	}

	ok, err := a.requireView(ctx, "close", "finance")
	if !ok {
		return err
	}

	if _, err := a.bills.CloseBill(ctx, *id, *comments); err != nil {
		return err
	}
	if state := a.bills.ApprovedBills(); state.Data != nil {
		a.printBills(*state.Data)
	}
	return nil
}

func (a *app) cmdUsers(ctx context.Context, args []string) error {
	fs := a.flagSet("users")
	if err := fs.Parse(args); err != nil {
		return err
	}
	ok, err := a.requireView(ctx, "users", "admin")
	if !ok {
		return err
	}

	users, err := a.userSvc.List(ctx)
	if err != nil {
		return err
	}

	tw := tabwriter.NewWriter(a.stdout, 0, 4, 2, ' ', 0)
	fmt.Fprintln(tw, "ID\tUSERNAME\tEMAIL\tROLES")
	for _, u := range users {
		fmt.Fprintf(tw, "%d\t%s\t%s\t%s\n", u.ID, u.Username, u.Email, strings.Join(u.Roles, ","))
	}
	return tw.Flush()
}

func (a *app) cmdUserUpdate(ctx context.Context, args []string) error {
	fs := a.flagSet("user-update")
	id := fs.Int64("id", 0, "User ID")
	email := fs.String("email", "", "New email")
	first := fs.String("first", "", "New first name")
	last := fs.String("last", "", "New last name")
	department := fs.String("department", "", "New department")
	roles := fs.String("roles", "", "Comma-separated roles (employee,manager,finance,admin)")
	if err := fs.Parse(args); err != nil {
		return err
	}
	if *id == 0 {
		return fmt.Errorf("missing required flag: -id")
	}

	ok, err := a.requireView(ctx, "user-update", "admin")
	if !ok {
		return err
	}

	var req services.UpdateUserRequest
	if *email != "" {
		req.Email = email
	}
	if *first != "" {
		req.FirstName = first
	}
	if *last != "" {
		req.LastName = last
	}
	if *department != "" {
		req.Department = department
	}
	if *roles != "" {
		var full []string
		for _, r := range strings.Split(*roles, ",") {
			full = append(full, "ROLE_"+strings.ToUpper(strings.TrimSpace(r)))
		}
		req.Roles = &full
	}

	user, err := a.userSvc.Update(ctx, *id, req)
	if err != nil {
		return err
	}
	fmt.Fprintf(a.stdout, "Updated %s: roles %s\n", user.Username, strings.Join(user.Roles, ","))
	return nil
}

func (a *app) cmdUserDelete(ctx context.Context, args []string) error {
	fs := a.flagSet("user-delete")
	id := fs.Int64("id", 0, "User ID")
	if err := fs.Parse(args); err != nil {
		return err
	}
	if *id == 0 {
		return fmt.Errorf("missing required flag: -id")
	}

	ok, err := a.requireView(ctx, "user-delete", "admin")
	if !ok {
		return err
	}

	if err := a.userSvc.Delete(ctx, *id); err != nil {
		return err
	}
	fmt.Fprintf(a.stdout, "Deleted user %d\n", *id)
	return nil
}

func (a *app) printBills(bills []models.Bill) {
	if len(bills) == 0 {
		fmt.Fprintln(a.stdout, "No bills.")
		return
	}
	tw := tabwriter.NewWriter(a.stdout, 0, 4, 2, ' ', 0)
	fmt.Fprintln(tw, "ID\tTITLE\tAMOUNT\tSTATUS\tDATE\tREQUESTER")
	for _, b := range bills {
		requester := ""
		if b.Requester != nil {
			requester = b.Requester.Username
		}
		fmt.Fprintf(tw, "%d\t%s\t%.2f\t%s\t%s\t%s\n",
			b.ID, b.Title, b.Amount, b.Status, b.Date.Format("2006-01-02"), requester)
	}
	tw.Flush()
}

func (a *app) printBillDetails(bill *models.Bill) {
	fmt.Fprintf(a.stdout, "Bill #%d: %s\n", bill.ID, bill.Title)
	if bill.Description != "" {
		fmt.Fprintf(a.stdout, "Description: %s\n", bill.Description)
	}
	fmt.Fprintf(a.stdout, "Amount:      %.2f\n", bill.Amount)
	fmt.Fprintf(a.stdout, "Status:      %s\n", bill.Status)
	fmt.Fprintf(a.stdout, "Date:        %s\n", bill.Date.Format("2006-01-02"))
	if bill.Requester != nil {
		fmt.Fprintf(a.stdout, "Requester:   %s\n", bill.Requester.Username)
	}
	if bill.Manager != nil {
		fmt.Fprintf(a.stdout, "Manager:     %s\n", bill.Manager.Username)
	}
	if bill.ReceiptURL != "" {
		fmt.Fprintf(a.stdout, "Receipt:     %s\n", bill.ReceiptURL)
	}
	if len(bill.History) > 0 {
		fmt.Fprintln(a.stdout, "History:")
		for _, h := range bill.History {
			line := fmt.Sprintf("  %s  %-8s  %s", h.Timestamp.Format("2006-01-02 15:04"), h.Status, h.Username)
			if h.Comments != "" {
				line += ": " + h.Comments
			}
			fmt.Fprintln(a.stdout, line)
		}
	}
}

func readPassword(stdin io.Reader) (string, error) {
	// Check if stdin is a terminal
	if f, ok := stdin.(*os.File); ok && term.IsTerminal(int(f.Fd())) {
		bytePassword, err := term.ReadPassword(int(f.Fd()))
		if err != nil {
			return "", err
		}
		return string(bytePassword), nil
	}

	// Fallback for non-terminal (e.g. tests, pipes)
	scanner := bufio.NewScanner(stdin)
	if scanner.Scan() {
		return scanner.Text(), nil
	}
	if err := scanner.Err(); err != nil {
		return "", err
	}
	return "", io.EOF
}
