package account

import "github.com/sirupsen/logrus"

var log = logrus.WithField("component", "account")
