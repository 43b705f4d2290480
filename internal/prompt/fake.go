package prompt

// Scripted is a Prompter that replays fixed answers in order. Running out
// of answers behaves like end of input and yields empty answers.
type Scripted struct {
	Answers []string
	// Labels records every question asked, secrets included.
	Labels []string
	// Secrets records the labels asked through AskSecret.
	Secrets []string
}

var _ Prompter = &Scripted{}

func (s *Scripted) Ask(label string) (string, error) {
	s.Labels = append(s.Labels, label)
	if len(s.Answers) == 0 {
		return "", nil
	}
	a := s.Answers[0]
	s.Answers = s.Answers[1:]
	return a, nil
}

func (s *Scripted) AskSecret(label string) (string, error) {
	s.Secrets = append(s.Secrets, label)
	return s.Ask(label)
}

func (s *Scripted) Confirm(label string) (Choice, error) {
	a, err := s.Ask(label)
	if err != nil {
		return Invalid, err
	}
	return ParseChoice(a), nil
}
